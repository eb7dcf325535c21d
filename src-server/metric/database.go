package metric

import (
	"context"
	"time"

	"elastiview/src-server/model"
	"elastiview/src-server/utils"
)

func database(as *utils.AppState) (time.Duration, error) {
	start := time.Now()
	if _, err := as.BunDb.NewSelect().
		Model((*model.OccurrenceSnapshot)(nil)).
		Where("recurrence_id = ?", "").
		Exists(context.Background()); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
