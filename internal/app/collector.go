package app

import (
	"github.com/meetscope/meetscope/internal/core"
)

// Collector is the core.FrameSink for one capture. It forwards every
// frame to the registry's guarded append, which keeps the frame only
// while the watch still exists and only when the participant matches
// the watched one. No blocking work happens here; the transport read
// loop calls straight through.
type Collector struct {
	reg       *Registry
	meetingID core.MeetingID
}

func NewCollector(reg *Registry, meetingID core.MeetingID) *Collector {
	return &Collector{reg: reg, meetingID: meetingID}
}

func (c *Collector) OnAudioFrame(f core.Frame, meta core.FrameMeta) {
	c.reg.AppendAudio(c.meetingID, meta, f)
}

func (c *Collector) OnVideoFrame(f core.Frame, meta core.FrameMeta) {
	c.reg.AppendVideo(c.meetingID, meta, f)
}
