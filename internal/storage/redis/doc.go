// Package redis offers distributed locking and queue primitives for the swap
// runtime. It exposes higher-level helpers tailored to swap workloads such as
// per-account serialization across multiple daemon instances.
package redis
