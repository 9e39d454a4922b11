package domain

// AutopostTool is which publish operation a job drives.
type AutopostTool string

const (
	ToolPublishOffer AutopostTool = "publish-offer"
	ToolPublishRFQ   AutopostTool = "publish-rfq"
)

// AutopostJob is an in-memory-only scheduled republication job
// (component C5). ValidUntilUnix is fixed at Start and never extended
// by a later run, even though the job itself keeps firing until that
// deadline passes.
type AutopostJob struct {
	Name           string
	Tool           AutopostTool
	IntervalSec    int64
	TTLSec         int64
	ValidUntilUnix int64
	Args           map[string]any

	Runs       int64
	StartedAt  int64
	LastRunAt  int64
	LastOK     bool
	LastError  string
}

// AutopostSnapshot is the read-only view returned by status().
type AutopostSnapshot struct {
	Name           string
	Tool           AutopostTool
	IntervalSec    int64
	TTLSec         int64
	ValidUntilUnix int64
	Args           map[string]any
	Runs           int64
	StartedAt      int64
	LastRunAt      int64
	LastOK         bool
	LastError      string
}
