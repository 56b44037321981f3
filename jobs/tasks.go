package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueFiscal is the dedicated queue for fiscal authority traffic.
	QueueFiscal = "fiscal"
)
