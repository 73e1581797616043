package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/internal/session"
)

const (
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	outboundBuffer = 256
)

// Frame types sent over the realtime websocket.
const (
	FrameIdentity = "identity"
	FrameSnapshot = "snapshot"
	FrameChange   = "change"
)

var tableSubjects = map[string]ability.Subject{
	models.TableClients:        ability.Client,
	models.TableTasks:          ability.Task,
	models.TableCalendarEvents: ability.CalendarEvent,
	models.TableMedia:          ability.Media,
	models.TableMembers:        ability.Member,
	models.TableInvitations:    ability.Invitation,
}

// Frame is one message on the realtime websocket.
type Frame struct {
	Type     string             `json:"type"`
	Identity *realtime.Identity `json:"identity,omitempty"`
	Table    string             `json:"table,omitempty"`
	Rows     []realtime.Row     `json:"rows,omitempty"`
	Change   *realtime.Change   `json:"change,omitempty"`
}

type SnapshotResponse struct {
	Identity realtime.Identity         `json:"identity"`
	Tables   map[string][]realtime.Row `json:"tables"`
}

type RealtimeHandler struct {
	hub        *realtime.Hub
	identities realtime.Persister
	tables     []string
	backoff    realtime.Backoff
	origins    []string
	logger     *slog.Logger
}

type RealtimeHandlerConfig struct {
	Hub        *realtime.Hub
	Identities realtime.Persister
	Tables     []string
	Backoff    realtime.Backoff
	// OriginPatterns are host patterns allowed to open the websocket
	// cross-origin. Same-origin requests are always accepted.
	OriginPatterns []string
	Logger         *slog.Logger
}

func NewRealtimeHandler(cfg RealtimeHandlerConfig) *RealtimeHandler {
	backoff := cfg.Backoff
	if backoff.Initial <= 0 || backoff.Max <= 0 {
		backoff = realtime.DefaultBackoff
	}
	return &RealtimeHandler{
		hub:        cfg.Hub,
		identities: cfg.Identities,
		tables:     cfg.Tables,
		backoff:    backoff,
		origins:    cfg.OriginPatterns,
		logger:     cfg.Logger,
	}
}

func mirrorKey(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func identityOf(sc session.Context) realtime.Identity {
	id := realtime.Identity{Role: sc.Role}
	if sc.OrgID != uuid.Nil {
		id.OrgID = sc.OrgID.String()
	}
	if sc.User != nil {
		id.UserEmail = sc.User.Email
	}
	return id
}

// visibleTables returns the mirrored tables the session may read.
func (h *RealtimeHandler) visibleTables(ab *ability.Abilities) []string {
	out := make([]string, 0, len(h.tables))
	for _, table := range h.tables {
		subject, ok := tableSubjects[table]
		if ok && ab.Can(ability.Read, subject) {
			out = append(out, table)
		}
	}
	return out
}

// rowFilter limits restricted sessions to rows of their linked clients.
// It returns nil when the session sees the whole org.
func rowFilter(table string, ab *ability.Abilities) realtime.RowFilter {
	if !ab.Restricted() {
		return nil
	}
	key := "client_id"
	if table == models.TableClients {
		key = "id"
	}
	return func(row realtime.Row) bool {
		id, _ := row[key].(string)
		return id != "" && ab.Linked(id)
	}
}

// Snapshot handles GET /api/v1/realtime/snapshot: a one-shot hydration of
// every table the caller may read.
func (h *RealtimeHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	ctx := r.Context()

	store := realtime.NewStore(h.identities, mirrorKey(sc.User.ID))
	if err := store.SetIdentity(ctx, identityOf(sc)); err != nil {
		h.logger.Warn("persisting mirror identity failed", "user_id", sc.User.ID, "error", err)
	}

	orgID := sc.OrgID.String()
	tables := make(map[string][]realtime.Row)
	for _, table := range h.visibleTables(ab) {
		rows, err := h.hub.Load(ctx, table, orgID)
		if err != nil {
			h.logger.Error("hydration failed, returning empty table", "table", table, "org_id", orgID, "error", err)
			rows = nil
		}
		if f := rowFilter(table, ab); f != nil {
			rows = filterRows(rows, f)
		}
		store.SetTable(table, rows)
		tables[table] = store.Table(table)
	}

	respond(w, http.StatusOK, SnapshotResponse{Identity: store.Identity(), Tables: tables})
}

func filterRows(rows []realtime.Row, keep realtime.RowFilter) []realtime.Row {
	out := make([]realtime.Row, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// Stream handles GET /api/v1/realtime/ws. Each connection owns a store and a
// mirror per readable table; the client receives an identity frame, one
// snapshot frame per hydration and a change frame per applied event.
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends data frames; CloseRead handles control frames
	// and cancels ctx once the peer goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	out := make(chan Frame, outboundBuffer)
	send := func(f Frame) {
		select {
		case out <- f:
		case <-ctx.Done():
		default:
			h.logger.Warn("realtime client too slow, closing", "user_id", sc.User.ID)
			cancel()
		}
	}

	store := realtime.NewStore(h.identities, mirrorKey(sc.User.ID))
	if err := store.Rehydrate(ctx); err != nil {
		h.logger.Warn("restoring mirror identity failed", "user_id", sc.User.ID, "error", err)
	}
	identity := identityOf(sc)
	if err := store.SetIdentity(ctx, identity); err != nil {
		h.logger.Warn("persisting mirror identity failed", "user_id", sc.User.ID, "error", err)
	}
	send(Frame{Type: FrameIdentity, Identity: &identity})

	mirror := realtime.NewMirror(store, h.hub, h.hub, h.logger, h.backoff)
	orgID := sc.OrgID.String()
	for _, table := range h.visibleTables(ab) {
		table := table
		opts := []realtime.SubscribeOption{
			realtime.WithOnChange(func(c realtime.Change) {
				send(Frame{Type: FrameChange, Table: c.Table, Change: &c})
			}),
		}
		if f := rowFilter(table, ab); f != nil {
			opts = append(opts, realtime.WithRowFilter(f))
		}

		sub, err := mirror.Subscribe(ctx, table, orgID, func(rows []realtime.Row) {
			send(Frame{Type: FrameSnapshot, Table: table, Rows: rows})
		}, opts...)
		if err != nil {
			h.logger.Error("realtime subscribe failed", "table", table, "org_id", orgID, "error", err)
			conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer sub.Close()
	}

	h.logger.Debug("realtime client connected", "user_id", sc.User.ID, "org_id", orgID)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case f := <-out:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, f)
			wcancel()
			if err != nil {
				h.logger.Debug("realtime write failed", "user_id", sc.User.ID, "error", err)
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
