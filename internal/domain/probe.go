package domain

// ProbeOutcome is the result of probing a service, after retries.
type ProbeOutcome struct {
	Success    bool
	LatencyMs  int64
	HTTPStatus int
	Attempts   int
	Err        error
}

// Entry maps a probe outcome to the status snapshot the recorder stores:
// success is operational with the measured latency, anything else is an outage.
func (o ProbeOutcome) Entry() StatusHistoryEntry {
	if o.Success {
		return StatusHistoryEntry{
			Status: ServiceStatusOperational,
			Metrics: Metrics{
				Latency:      o.LatencyMs,
				Availability: 100,
				ErrorRate:    0,
			},
		}
	}

	entry := StatusHistoryEntry{
		Status:  ServiceStatusOutage,
		Metrics: DefaultMetrics(ServiceStatusOutage),
	}
	if o.Err != nil {
		entry.Message = o.Err.Error()
	}
	return entry
}
