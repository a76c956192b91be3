// Package sched implements the fixed task plan and the scheduler driver
// that owns all process-wide node state. On hardware each plan entry is an
// RTOS task; the host harness releases the same bodies cooperatively in
// deterministic order.
package sched

import "sort"

// Task names, as they appear in heartbeats and watchdog registration.
const (
	TaskFaultMonitor  = "FaultMonitorTask"
	TaskRFScan        = "RFScanTask"
	TaskFFT           = "FFTTflmTask"
	TaskPacketBuilder = "PacketBuilderTask"
	TaskTransport     = "TransportTask"
	TaskGNSS          = "GNSSMonitorTask"
	TaskSensorHealth  = "SensorHealthTask"
	TaskOta           = "OtaUpdateTask"
)

// TaskCount is the number of tasks in the plan.
const TaskCount = 8

// TaskConfig describes one entry of the fixed task plan.
type TaskConfig struct {
	Name              string
	Priority          uint8
	StackWords        uint16
	PeriodMS          uint32
	WatchdogProtected bool
	WatchdogBudgetMS  uint32
}

// plan is the task plan. The table is part of the node's public contract:
// names, priorities, periods and budgets are all testable.
var plan = [TaskCount]TaskConfig{
	{TaskFaultMonitor, 6, 768, 250, true, 750},
	{TaskRFScan, 5, 2048, 500, true, 1000},
	{TaskFFT, 5, 3584, 500, true, 1000},
	{TaskPacketBuilder, 4, 2048, 1000, true, 2000},
	{TaskTransport, 4, 2048, 250, true, 750},
	{TaskGNSS, 3, 1536, 2000, false, 0},
	{TaskSensorHealth, 3, 1536, 1000, true, 2000},
	{TaskOta, 2, 2048, 5000, true, 8000},
}

// TaskPlan returns the plan in declaration order.
func TaskPlan() []TaskConfig {
	out := make([]TaskConfig, TaskCount)
	copy(out[:], plan[:])
	return out
}

// sortByRelease orders slots for release within a tick: priority
// descending, then period ascending, stable for ties.
func sortByRelease(slots []slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i].cfg, slots[j].cfg
		if a.Priority == b.Priority {
			return a.PeriodMS < b.PeriodMS
		}
		return a.Priority > b.Priority
	})
}
