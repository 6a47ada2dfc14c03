package cluster

// Priority es la prioridad declarada de una tarea de cluster state.
// La cola es FIFO: la prioridad se reporta en logs y métricas.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityUrgent
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLanguid
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "IMMEDIATE"
	case PriorityUrgent:
		return "URGENT"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	case PriorityLanguid:
		return "LANGUID"
	default:
		return "UNKNOWN"
	}
}
