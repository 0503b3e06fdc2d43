package core

import (
	"context"
	"encoding/json"
)

// FrameSink receives decoded media frames from a live session.
// Callbacks are invoked from the transport's read loop on an
// unspecified schedule; implementations must only append-or-discard,
// never block.
type FrameSink interface {
	OnAudioFrame(f Frame, meta FrameMeta)
	OnVideoFrame(f Frame, meta FrameMeta)
}

// MediaSession is a live subscription to one meeting's media stream.
// Owned by the coordination core; Leave is safe to call more than once.
type MediaSession interface {
	Leave() error
}

// MediaTransport joins the platform's realtime media stream. Each call
// returns an independent session handle, so unrelated meetings can be
// monitored concurrently in one process.
type MediaTransport interface {
	Join(ctx context.Context, p JoinParams, sink FrameSink) (MediaSession, error)
}

// AnalysisClient submits one completed capture to the external
// analysis API. The response body is passed through verbatim.
type AnalysisClient interface {
	Analyze(ctx context.Context, req AnalysisRequest) (json.RawMessage, error)
}
