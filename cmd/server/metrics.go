package main

import (
	"context"
	"log"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/app"
	"github.com/Cembrun/Checkbell-V2/internal/metrics"
	"github.com/Cembrun/Checkbell-V2/internal/task"
)

func startMetricsCollector(a *app.App, departments []string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	updateOpenItems(a, departments)
	for range ticker.C {
		updateOpenItems(a, departments)
	}
}

func updateOpenItems(a *app.App, departments []string) {
	ctx := context.Background()

	for _, dep := range departments {
		stats, err := a.Dashboard.Collect(ctx, dep)
		if err != nil {
			log.Printf("Failed to collect stats for %s: %v", dep, err)
			continue
		}

		metrics.UpdateOpenItems(dep, string(task.CollectionTasks), stats.Tasks.Open)
		metrics.UpdateOpenItems(dep, string(task.CollectionReports), stats.Reports.Open)
	}
}
