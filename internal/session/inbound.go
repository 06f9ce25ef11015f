package session

import (
	"errors"
	"slices"
	"strings"

	"github.com/MrWong99/sereno/internal/observe"
	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/memory"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

// Stickers lists the sticker names offered to the model.
var Stickers = []string{"calm", "celebrate", "heart", "hug", "sparkles", "sun", "thinking", "wave"}

var stickerToolDef = s2s.ToolDefinition{
	Name:        StickerTool,
	Description: "Show a small sticker next to the conversation to express an emotion or celebrate progress.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sticker": map[string]any{
				"type":        "string",
				"description": "Name of the sticker to show.",
				"enum":        Stickers,
			},
		},
		"required": []string{"sticker"},
	},
}

var errOutputNotReady = errors.New("session: output context not ready")

// Chunk drop reasons.
const (
	dropNotReady    = "not_ready"
	dropMalformed   = "malformed_payload"
	dropUnsupported = "unsupported_format"
	dropConvert     = "convert"
	dropPlayback    = "playback"
)

func (m *Machine) handleMessage(r *run, msg *s2s.ServerMessage) {
	if r.done || msg == nil {
		return
	}

	if sc := msg.ServerContent; sc != nil {
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			r.user.WriteString(t.Text)
			m.status.SetStatus(r.user.String())
		}
		if t := sc.OutputTranscription; t != nil && t.Text != "" {
			r.model.WriteString(t.Text)
			m.status.SetStatus(r.model.String())
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil {
					m.playChunk(r, p.InlineData)
				}
			}
		}
		if sc.Interrupted {
			observe.Logger(r.ctx).Debug("session: model turn interrupted")
		}
		if sc.TurnComplete {
			m.finalizeTurn(r)
		}
	}

	if tc := msg.ToolCall; tc != nil {
		m.handleToolCall(r, tc)
	}
}

// ─── Audio ───────────────────────────────────────────────────────────────────

// playChunk decodes one inbound chunk and schedules it. Chunks that fail to
// decode are logged and dropped; the session carries on.
func (m *Machine) playChunk(r *run, d *s2s.InlineData) {
	buf, kind, err := m.decodeChunk(r, d)
	if err == nil && buf.Frames() == 0 {
		return
	}
	if err != nil {
		observe.Logger(r.ctx).Warn("session: dropping inbound audio chunk",
			"kind", kind,
			"mime_type", d.MIMEType,
			"payload_len", len(d.Data),
			"err", err,
		)
		m.metrics.RecordChunkDropped(r.ctx, kind)
		return
	}

	p, err := m.scheduler.Schedule(buf)
	if err != nil {
		observe.Logger(r.ctx).Warn("session: schedule audio chunk", "err", err)
		m.metrics.RecordChunkDropped(r.ctx, dropPlayback)
		return
	}
	m.metrics.RecordChunkScheduled(r.ctx)
	if p.Gap > 0 {
		m.metrics.PlaybackGap.Record(r.ctx, p.Gap)
	}
}

func (m *Machine) decodeChunk(r *run, d *s2s.InlineData) (*audio.Buffer, string, error) {
	if r.output == nil {
		return nil, dropNotReady, errOutputNotReady
	}
	format, err := audio.ParseMIMEType(d.MIMEType, r.inbound)
	if err != nil {
		return nil, dropUnsupported, err
	}
	raw, err := audio.DecodePayload(d.Data)
	if err != nil {
		return nil, dropMalformed, err
	}
	buf, err := audio.Decode(raw, format.SampleRate, format.Channels)
	if err != nil {
		return nil, dropUnsupported, err
	}
	if buf.Frames() == 0 {
		return buf, "", nil
	}
	buf, err = r.converter.Convert(buf)
	if err != nil {
		return nil, dropConvert, err
	}
	return buf, "", nil
}

// ─── Transcript ──────────────────────────────────────────────────────────────

// finalizeTurn moves the non-empty accumulators into the conversation log,
// user before model, and resets them.
func (m *Machine) finalizeTurn(r *run) {
	now := m.clock.Now()
	for _, acc := range []struct {
		role memory.Role
		text *strings.Builder
	}{
		{memory.RoleUser, &r.user},
		{memory.RoleModel, &r.model},
	} {
		text := strings.TrimSpace(acc.text.String())
		acc.text.Reset()
		if text == "" {
			continue
		}
		r.log = append(r.log, memory.TranscriptEntry{
			SessionID: r.id,
			Role:      acc.role,
			Text:      text,
			Timestamp: now,
		})
	}
}

// Transcript returns a copy of the finalized conversation log of the current
// or most recent session.
func (m *Machine) Transcript() []memory.TranscriptEntry {
	out := make(chan []memory.TranscriptEntry, 1)
	m.exec.post(func() {
		if m.cur == nil {
			out <- nil
			return
		}
		out <- slices.Clone(m.cur.log)
	})
	return <-out
}

// ─── Tools ───────────────────────────────────────────────────────────────────

func (m *Machine) handleToolCall(r *run, tc *s2s.ToolCall) {
	log := observe.Logger(r.ctx)
	responses := make([]s2s.FunctionResponse, 0, len(tc.FunctionCalls))

	for _, fc := range tc.FunctionCalls {
		resp := s2s.FunctionResponse{ID: fc.ID, Name: fc.Name}
		switch fc.Name {
		case StickerTool:
			name, _ := fc.Args["sticker"].(string)
			if name == "" {
				resp.Response = map[string]any{"error": "missing sticker name"}
				m.metrics.RecordToolCall(r.ctx, fc.Name, "error")
				break
			}
			m.showSticker(r, name)
			resp.Response = map[string]any{"result": "ok"}
			m.metrics.RecordToolCall(r.ctx, fc.Name, "ok")
		default:
			log.Warn("session: unknown function call", "name", fc.Name, "id", fc.ID)
			resp.Response = map[string]any{"error": "unknown function " + fc.Name}
			m.metrics.RecordToolCall(r.ctx, fc.Name, "unknown")
		}
		responses = append(responses, resp)
	}

	h := r.sessionHandle()
	if h == nil || len(responses) == 0 {
		return
	}
	if err := h.SendToolResponse(r.ctx, responses...); err != nil {
		log.Warn("session: send tool response", "err", err)
	}
}

// showSticker displays name and (re)arms its expiry. A pending expiry from
// an earlier sticker is cancelled; the sequence number guards against one
// that already fired and is queued.
func (m *Machine) showSticker(r *run, name string) {
	if r.stickerTimer != nil {
		r.stickerTimer.Stop()
	}
	r.stickerSeq++
	seq := r.stickerSeq

	m.status.ShowSticker(name)
	r.stickerTimer = m.clock.AfterFunc(m.stickerDuration, func() {
		m.exec.post(func() { m.expireSticker(r, seq) })
	})
}

func (m *Machine) expireSticker(r *run, seq uint64) {
	if r.done || seq != r.stickerSeq {
		return
	}
	r.stickerTimer = nil
	m.status.HideSticker()
}
