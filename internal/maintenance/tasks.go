package maintenance

import "time"

// Table names swept by the stock tasks.
const (
	tableCarts           = "carts"
	tableRefreshTokens   = "refresh_tokens"
	tableNotificationLog = "notification_log"
	archNotificationLog  = "notification_log_archive"
)

// Windows holds the retention settings for the stock task set.
type Windows struct {
	StaleCarts      time.Duration
	ExpiredTokens   time.Duration
	NotificationLog time.Duration
	FinishedJobs    time.Duration
}

// Schedules holds the cron expression per stock task.
type Schedules struct {
	StaleCarts      string
	ExpiredTokens   string
	NotificationLog string
	FinishedJobs    string
}

// StockTasks builds the standard cleanup set: abandoned carts, refresh
// tokens past their expiry, the notification delivery log (archived, not
// dropped) and finished jobs.
func StockTasks(store Store, jobs FinishedJobStore, w Windows, s Schedules) []Task {
	return []Task{
		NewRetentionTask("stale-cart-cleanup", s.StaleCarts,
			store, tableCarts, "updated_at", w.StaleCarts),
		NewRetentionTask("expired-token-cleanup", s.ExpiredTokens,
			store, tableRefreshTokens, "expires_at", w.ExpiredTokens),
		NewArchiveTask("notification-log-archive", s.NotificationLog,
			store, tableNotificationLog, archNotificationLog, "created_at", w.NotificationLog),
		NewJobPurgeTask(s.FinishedJobs, jobs, w.FinishedJobs),
	}
}
