package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/eplaytime/playtimed/internal/config"
	"github.com/eplaytime/playtimed/internal/controller"
	"github.com/eplaytime/playtimed/internal/scheduler"
	"github.com/eplaytime/playtimed/internal/session"
	"github.com/eplaytime/playtimed/internal/store"
)

// RescanFunc re-scans the library and refreshes the session queue
type RescanFunc func(ctx context.Context) error

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	controller *controller.Controller
	sess       *session.Session
	store      *store.Store
	sched      *scheduler.Engine
	alarms     *scheduler.Handler
	configMgr  *config.Manager
	rescan     RescanFunc

	listener net.Listener
	mu       sync.Mutex
	clients  map[net.Conn]struct{}
}

// NewServer creates a new IPC server
func NewServer(
	socketPath string,
	ctrl *controller.Controller,
	sess *session.Session,
	st *store.Store,
	sched *scheduler.Engine,
	alarms *scheduler.Handler,
	configMgr *config.Manager,
	rescan RescanFunc,
) *Server {
	return &Server{
		socketPath: socketPath,
		controller: ctrl,
		sess:       sess,
		store:      st,
		sched:      sched,
		alarms:     alarms,
		configMgr:  configMgr,
		rescan:     rescan,
		clients:    make(map[net.Conn]struct{}),
	}
}

// Start starts the IPC server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// User-only: the socket is the sole access control surface
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			s.sendResponse(conn, NewErrorResponse("invalid request format"))
			continue
		}

		// Status polls are too frequent to log
		if req.Cmd != CmdStatus {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		resp := s.handleRequest(ctx, req)
		if err := s.sendResponse(conn, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Cmd {
	case CmdStatus:
		return s.handleStatus()
	case CmdPlay:
		return s.handlePlay(req)
	case CmdToggle:
		return s.handleToggle()
	case CmdStop:
		return s.handleStop()
	case CmdSeek:
		return s.handleSeek(req)
	case CmdNext:
		return s.simpleCommand(s.controller.Next)
	case CmdPrev:
		return s.simpleCommand(s.controller.Previous)
	case CmdVolume:
		return s.handleVolume(req)
	case CmdSetShuffle:
		return s.handleSetShuffle(req)
	case CmdCycleRepeat:
		return s.handleCycleRepeat()
	case CmdABLoop:
		return s.handleABLoop()
	case CmdQueueMove:
		return s.handleQueueMove(req)
	case CmdQueueRemove:
		return s.handleQueueRemove(req)
	case CmdRescan:
		return s.handleRescan(ctx)
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdSetConfig:
		return s.handleSetConfig(ctx, req)
	case CmdScheduleList:
		return s.handleScheduleList()
	case CmdScheduleCreate:
		return s.handleScheduleCreate(req)
	case CmdScheduleUpdate:
		return s.handleScheduleUpdate(req)
	case CmdScheduleDelete:
		return s.handleScheduleDelete(req)
	case CmdScheduleToggle:
		return s.handleScheduleToggle(req)
	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Cmd))
	}
}

func (s *Server) simpleCommand(fn func() error) *Response {
	if err := fn(); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleStatus() *Response {
	state := s.controller.State()
	loop := s.controller.Loop()

	status := StatusResponse{
		AttachState: string(s.controller.AttachState()),
		State:       "stopped",
		Position:    state.PositionMillis,
		Duration:    state.DurationMillis,
		Volume:      state.Volume,
		QueueSize:   len(state.Queue),
		RepeatMode:  state.RepeatMode.String(),
		Shuffle:     state.ShuffleEnabled,
		LoopPhase:   int(loop.Phase),
		LoopStart:   loop.StartMillis,
		LoopEnd:     loop.EndMillis,
	}

	if state.CurrentTrack != "" {
		if state.IsPlaying {
			status.State = "playing"
		} else {
			status.State = "paused"
		}
		status.URI = state.CurrentTrack

		if track, ok := s.controller.NowPlaying(); ok {
			status.Title = track.Title
			status.Artist = track.Artist
			status.Album = track.Album
		}
	}

	resp, err := NewSuccessResponse(status)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handlePlay(req *Request) *Response {
	var play PlayRequest
	if err := json.Unmarshal(req.Data, &play); err != nil {
		return NewErrorResponse("invalid play request")
	}
	if play.URI == "" {
		return NewErrorResponse("uri is required")
	}

	if err := s.controller.PlayTrack(play.URI); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleToggle() *Response {
	return s.simpleCommand(s.controller.TogglePlayPause)
}

// handleStop stops playback and restores any alarm-overridden volume
func (s *Server) handleStop() *Response {
	if err := s.sess.Stop(); err != nil {
		return NewErrorResponse(err.Error())
	}
	s.alarms.RestorePriorVolume()
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleSeek(req *Request) *Response {
	var seek SeekRequest
	if err := json.Unmarshal(req.Data, &seek); err != nil {
		return NewErrorResponse("invalid seek request")
	}
	if err := s.controller.SeekTo(seek.Position); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleVolume(req *Request) *Response {
	var vol VolumeRequest
	if err := json.Unmarshal(req.Data, &vol); err != nil {
		return NewErrorResponse("invalid volume request")
	}
	if err := s.sess.SetVolume(vol.Level); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleSetShuffle(req *Request) *Response {
	var shuffle SetShuffleRequest
	if err := json.Unmarshal(req.Data, &shuffle); err != nil {
		return NewErrorResponse("invalid setShuffle request")
	}
	s.controller.SetShuffle(shuffle.Enabled)
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleCycleRepeat() *Response {
	mode := s.controller.CycleRepeatMode()
	resp, err := NewSuccessResponse(map[string]string{"repeatMode": mode.String()})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleABLoop() *Response {
	loop := s.controller.SetABLoopMarker()
	resp, err := NewSuccessResponse(ABLoopResponse{
		Phase: int(loop.Phase),
		Start: loop.StartMillis,
		End:   loop.EndMillis,
	})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleQueueMove(req *Request) *Response {
	var move QueueMoveRequest
	if err := json.Unmarshal(req.Data, &move); err != nil {
		return NewErrorResponse("invalid queueMove request")
	}
	if err := s.controller.MoveQueueItem(move.FromIndex, move.ToIndex); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleQueueRemove(req *Request) *Response {
	var remove QueueRemoveRequest
	if err := json.Unmarshal(req.Data, &remove); err != nil {
		return NewErrorResponse("invalid queueRemove request")
	}
	if err := s.controller.RemoveQueueItem(remove.Index); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleRescan(ctx context.Context) *Response {
	if s.rescan == nil {
		return NewErrorResponse("rescan not available")
	}
	if err := s.rescan(ctx); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleGetConfig() *Response {
	cfg := s.configMgr.Get()
	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath:            s.configMgr.GetPath(),
		LibraryPaths:          cfg.LibraryPaths,
		SampleRate:            cfg.Audio.SampleRate,
		DefaultVolume:         cfg.Audio.DefaultVolume,
		MinDurationMillis:     cfg.Library.MinDurationMillis,
		ExcludePathSubstrings: cfg.Library.ExcludePathSubstrings,
		ExactTimers:           cfg.Alarm.ExactTimers,
	})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleSetConfig(ctx context.Context, req *Request) *Response {
	var cfgReq ConfigRequest
	if err := json.Unmarshal(req.Data, &cfgReq); err != nil {
		return NewErrorResponse("invalid setConfig request")
	}

	cfg := s.configMgr.Get()
	libraryChanged := false

	if cfgReq.LibraryPaths != nil {
		cfg.LibraryPaths = *cfgReq.LibraryPaths
		libraryChanged = true
	}
	if cfgReq.SampleRate != nil {
		cfg.Audio.SampleRate = *cfgReq.SampleRate
	}
	if cfgReq.DefaultVolume != nil {
		cfg.Audio.DefaultVolume = *cfgReq.DefaultVolume
	}
	if cfgReq.MinDurationMillis != nil {
		cfg.Library.MinDurationMillis = *cfgReq.MinDurationMillis
		libraryChanged = true
	}
	if cfgReq.ExcludePathSubstrings != nil {
		cfg.Library.ExcludePathSubstrings = *cfgReq.ExcludePathSubstrings
		libraryChanged = true
	}
	if cfgReq.ExactTimers != nil {
		cfg.Alarm.ExactTimers = *cfgReq.ExactTimers
	}

	if err := s.configMgr.Update(cfg); err != nil {
		log.Printf("[IPC] Failed to save config: %v", err)
		return NewErrorResponse(fmt.Sprintf("failed to save config: %v", err))
	}
	log.Printf("[IPC] Config updated")

	// SampleRate and ExactTimers apply on next daemon start; new library
	// settings take effect immediately through a rescan
	if libraryChanged && s.rescan != nil {
		if err := s.rescan(ctx); err != nil {
			log.Printf("[IPC] Rescan after config change failed: %v", err)
		}
	}

	return s.handleGetConfig()
}

func (s *Server) handleScheduleList() *Response {
	entries, err := s.store.ListEntries()
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	now := time.Now()
	payloads := make([]ScheduleEntryPayload, 0, len(entries))
	for _, entry := range entries {
		p := entryToPayload(entry)
		if entry.Enabled {
			p.NextFire = scheduler.NextOccurrence(now, entry).UnixMilli()
		}
		payloads = append(payloads, p)
	}

	resp, err := NewSuccessResponse(ScheduleListResponse{Entries: payloads})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleScheduleCreate(req *Request) *Response {
	var payload ScheduleEntryPayload
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return NewErrorResponse("invalid scheduleCreate request")
	}

	created, err := s.store.CreateEntry(payloadToEntry(payload))
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	if created.Enabled {
		s.sched.Schedule(created)
	}

	resp, err := NewSuccessResponse(entryToPayload(created))
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleScheduleUpdate(req *Request) *Response {
	var payload ScheduleEntryPayload
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return NewErrorResponse("invalid scheduleUpdate request")
	}
	if payload.ID == 0 {
		return NewErrorResponse("id is required")
	}

	entry := payloadToEntry(payload)
	entry.ID = payload.ID
	if err := s.store.UpdateEntry(entry); err != nil {
		return NewErrorResponse(err.Error())
	}

	// A changed time or track needs a fresh registration
	s.sched.Cancel(entry.ID)
	if entry.Enabled {
		s.sched.Schedule(&entry)
	}

	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleScheduleDelete(req *Request) *Response {
	var id ScheduleIDRequest
	if err := json.Unmarshal(req.Data, &id); err != nil {
		return NewErrorResponse("invalid scheduleDelete request")
	}

	if err := s.store.DeleteEntry(id.ID); err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return NewErrorResponse("entry not found")
		}
		return NewErrorResponse(err.Error())
	}
	s.sched.Cancel(id.ID)

	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleScheduleToggle(req *Request) *Response {
	var toggle ScheduleToggleRequest
	if err := json.Unmarshal(req.Data, &toggle); err != nil {
		return NewErrorResponse("invalid scheduleToggle request")
	}

	if err := s.store.SetEntryEnabled(toggle.ID, toggle.Enabled); err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return NewErrorResponse("entry not found")
		}
		return NewErrorResponse(err.Error())
	}

	if toggle.Enabled {
		entry, err := s.store.GetEntry(toggle.ID)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		s.sched.Schedule(entry)
	} else {
		s.sched.Cancel(toggle.ID)
	}

	resp, _ := NewSuccessResponse(nil)
	return resp
}

func entryToPayload(entry *store.ScheduledEntry) ScheduleEntryPayload {
	return ScheduleEntryPayload{
		ID:            entry.ID,
		TrackURI:      entry.TrackURI,
		TrackLabel:    entry.TrackLabel,
		Hour:          entry.Hour,
		Minute:        entry.Minute,
		Enabled:       entry.Enabled,
		TargetVolume:  entry.TargetVolume,
		RepeatDays:    entry.RepeatDays,
		SnoozeEnabled: entry.SnoozeEnabled,
		Label:         entry.Label,
	}
}

func payloadToEntry(p ScheduleEntryPayload) store.ScheduledEntry {
	return store.ScheduledEntry{
		TrackURI:      p.TrackURI,
		TrackLabel:    p.TrackLabel,
		Hour:          p.Hour,
		Minute:        p.Minute,
		Enabled:       p.Enabled,
		TargetVolume:  p.TargetVolume,
		RepeatDays:    p.RepeatDays,
		SnoozeEnabled: p.SnoozeEnabled,
		Label:         p.Label,
	}
}
