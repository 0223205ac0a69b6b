// Package persistence stores endpoint and server runtime state as JSON
// files so that a restart resumes where the previous process stopped.
//
// The endpoint keeps its last registration location, the reported counter
// and values written by the server. The management server keeps the
// registrations it has accepted.
package persistence
