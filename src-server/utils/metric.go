package utils

type Metric struct {
	RemoteRoundTrip chan float64
	SnapshotRefresh chan float64
	TimelineBuild   chan float64
}

func NewMetric() *Metric {
	return &Metric{
		RemoteRoundTrip: make(chan float64),
		SnapshotRefresh: make(chan float64),
		TimelineBuild:   make(chan float64),
	}
}
