package poller

// Default countdown periods, in heartbeat units.
const (
	DefaultWebRefresh = 30
	DefaultDBRefresh  = 30
)

// Countdown holds the two refresh counters advanced by the heartbeat.
//
// The web counter schedules reconciliation polls. The db counter only feeds
// the dashboard countdown display; a positive status poll resets it. Both
// counters reset to their full period when they reach zero.
//
// Countdown is not safe for concurrent use.
type Countdown struct {
	webPeriod int
	dbPeriod  int
	web       int
	db        int
}

// TickResult reports what became due on a heartbeat.
type TickResult struct {
	// PollDue is true when the web counter expired and a reconciliation
	// poll should be issued.
	PollDue bool

	// DBWrapped is true when the db counter expired and was reset.
	DBWrapped bool
}

// NewCountdown returns a countdown with both counters at their full period.
// Non-positive periods fall back to the defaults.
func NewCountdown(webPeriod, dbPeriod int) *Countdown {
	if webPeriod <= 0 {
		webPeriod = DefaultWebRefresh
	}
	if dbPeriod <= 0 {
		dbPeriod = DefaultDBRefresh
	}
	return &Countdown{
		webPeriod: webPeriod,
		dbPeriod:  dbPeriod,
		web:       webPeriod,
		db:        dbPeriod,
	}
}

// Tick advances both counters by one heartbeat.
func (c *Countdown) Tick() TickResult {
	c.web--
	c.db--

	var res TickResult
	if c.web <= 0 {
		c.web = c.webPeriod
		res.PollDue = true
	}
	if c.db <= 0 {
		c.db = c.dbPeriod
		res.DBWrapped = true
	}
	return res
}

// ResetWeb restarts the web counter, typically after a manual poll.
func (c *Countdown) ResetWeb() { c.web = c.webPeriod }

// ResetDB restarts the db counter, typically after a positive status poll.
func (c *Countdown) ResetDB() { c.db = c.dbPeriod }

// Remaining returns the heartbeats left on each counter.
func (c *Countdown) Remaining() (web, db int) { return c.web, c.db }
