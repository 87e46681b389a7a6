package delivery

import "fmt"

// FetchError reports a failed or unusable document download.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery: fetch %s: http status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("delivery: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Code identifies the error class in logs.
func (e *FetchError) Code() string { return "fetch" }

// DeliveryError reports that the platform rejected a send at one tier.
type DeliveryError struct {
	Tier Tier
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery: %s tier: %v", e.Tier, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code identifies the error class in logs.
func (e *DeliveryError) Code() string { return "delivery_" + string(e.Tier) }
