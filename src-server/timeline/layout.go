package timeline

import "sort"

// Block is one laid-out occurrence fragment on a day column.
type Block struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TimeLabel   string `json:"timeLabel,omitempty"`
	Kind        string `json:"kind"`
	Starred     bool   `json:"starred,omitempty"`
	IsFullDay   bool   `json:"isFullDay,omitempty"`
	IsAdjusted  bool   `json:"isAdjusted,omitempty"`
	ShowContent bool   `json:"showContent"`

	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
	Column      int `json:"column"`
	Columns     int `json:"columns"`
	ClusterID   int `json:"clusterId"`
}

// Layout assigns every block a visual column such that no two blocks
// with intersecting [StartMinute, EndMinute) ranges share one, and
// stamps each with its overlap cluster's final column count. Greedy
// first-fit over blocks sorted by left endpoint: interval graphs are
// perfect, so the resulting count is the minimum, not just valid.
func Layout(blocks []*Block) {
	sorted := make([]*Block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartMinute != sorted[j].StartMinute {
			return sorted[i].StartMinute < sorted[j].StartMinute
		}
		return sorted[i].EndMinute < sorted[j].EndMinute
	})

	var active []*Block
	clusterID := 0
	clusterMax := map[int]int{}

	for _, block := range sorted {
		// evict everything that ended before this block starts; their
		// columns become free
		kept := active[:0]
		for _, candidate := range active {
			if candidate.EndMinute > block.StartMinute {
				kept = append(kept, candidate)
			}
		}
		active = kept

		if len(active) == 0 {
			clusterID++
		}

		used := map[int]bool{}
		for _, candidate := range active {
			used[candidate.Column] = true
		}
		column := 0
		for used[column] {
			column++
		}

		block.Column = column
		block.ClusterID = clusterID
		active = append(active, block)

		if simultaneous := len(active); simultaneous > clusterMax[clusterID] {
			clusterMax[clusterID] = simultaneous
		}
	}

	for _, block := range blocks {
		columns := clusterMax[block.ClusterID]
		if columns < 1 {
			columns = 1
		}
		block.Columns = columns
	}
}
