package service

import (
	"sync"
	"time"
)

// VotingSession is the lifetime of one election. Registration and
// casting are only accepted while it is active.
type VotingSession struct {
	startTime time.Time
	endTime   time.Time
	isActive  bool
	mu        sync.RWMutex
}

// NewVotingSession starts a session. A zero duration never expires and
// has to be ended explicitly.
func NewVotingSession(duration time.Duration) *VotingSession {
	now := time.Now()
	s := &VotingSession{
		startTime: now,
		isActive:  true,
	}
	if duration > 0 {
		s.endTime = now.Add(duration)
	}
	return s
}

func (vs *VotingSession) IsActive() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if !vs.isActive {
		return false
	}
	return vs.endTime.IsZero() || time.Now().Before(vs.endTime)
}

// End closes the session. It reports false if it was already closed.
func (vs *VotingSession) End() bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	wasActive := vs.isActive
	vs.isActive = false
	if wasActive && (vs.endTime.IsZero() || time.Now().Before(vs.endTime)) {
		vs.endTime = time.Now()
	}
	return wasActive
}

// SessionInfo is the public view of a session.
type SessionInfo struct {
	Active    bool      `json:"active"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

func (vs *VotingSession) Info() SessionInfo {
	active := vs.IsActive()
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return SessionInfo{Active: active, StartTime: vs.startTime, EndTime: vs.endTime}
}
