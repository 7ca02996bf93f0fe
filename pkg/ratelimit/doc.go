// Package ratelimit provides request pacing for the monitor.
//
// The TokenBucket limiter bounds how many image fetches go out per refill
// period, and the Pacer spaces page-driven actions (navigation, scrolling,
// carousel clicks) with randomized human-like delays.
package ratelimit
