package domain

// DispatchResult summarizes one event fan-out: the topics the event
// resolved to and how many connections accepted the delivery.
type DispatchResult struct {
	Targeted  []Topic `json:"targeted"`
	Delivered int     `json:"delivered"`
}
