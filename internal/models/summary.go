package models

import "time"

// RunSummary 一次提取运行的统计信息（日志和运行事件使用）
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Mode            RunMode   `json:"mode"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Devices         int       `json:"devices"`
	Readings        int       `json:"readings"`
	FreshRecords    int       `json:"fresh_records"`
	ExistingRecords int       `json:"existing_records"`
	MergedRecords   int       `json:"merged_records"`
	Persisted       bool      `json:"persisted"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
