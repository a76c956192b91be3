package sched

// Watchdog is the hardware watchdog facade. The scheduler registers every
// protected task at startup and feeds on each execution; enforcement of
// missed budgets happens in the scheduler itself, which records a
// watchdog_reset fault where the device would reboot the task.
type Watchdog interface {
	Init(timeoutMS uint32)
	RegisterTask(name string, timeoutMS uint32)
	Feed(name string)
}

// NopWatchdog is the host watchdog: it accepts every call and does
// nothing, leaving enforcement to the scheduler's budget check.
type NopWatchdog struct{}

func (NopWatchdog) Init(timeoutMS uint32)                      {}
func (NopWatchdog) RegisterTask(name string, timeoutMS uint32) {}
func (NopWatchdog) Feed(name string)                           {}
