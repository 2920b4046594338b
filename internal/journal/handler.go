package journal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

type entriesRepo interface {
	AddLiftEntry(ctx context.Context, entry LiftEntry) error
	ListLiftEntries(ctx context.Context, lift string) ([]LiftEntry, error)
	GetLiftEntry(ctx context.Context, id string) (*LiftEntry, error)
	DeleteLiftEntry(ctx context.Context, id string) error
	AddCardioEntry(ctx context.Context, entry CardioEntry) error
	ListCardioEntries(ctx context.Context, machine string) ([]CardioEntry, error)
	AddRunEntry(ctx context.Context, entry RunEntry) error
	ListRunEntries(ctx context.Context) ([]RunEntry, error)
}

type Handler struct {
	repo     entriesRepo
	analyzer *Analyzer
}

func NewHandler(repo entriesRepo, analyzer *Analyzer) *Handler {
	return &Handler{
		repo:     repo,
		analyzer: analyzer,
	}
}

func (handler *Handler) HandleAddLift(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.addLift")
	defer span.End()

	var entry LiftEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Errorf("add lift entry, unmarshal json params: %s", err)
		http.Error(w, "malformed lift entry", http.StatusBadRequest)
		return
	}
	if err := entry.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	if err := handler.repo.AddLiftEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			http.Error(w, "entry already exists", http.StatusConflict)
			return
		}
		log.Errorf("add lift entry: %s", err)
		http.Error(w, "failed to add lift entry", http.StatusInternalServerError)
		return
	}

	entryJson, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("add lift entry, marshal response: %s", err)
		http.Error(w, "failed to add lift entry", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entryJson, http.StatusCreated)
}

func (handler *Handler) HandleListLifts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.listLifts")
	defer span.End()

	lift := mux.Vars(r)["lift"]
	if _, ok := knownLifts[lift]; !ok {
		http.Error(w, "unknown lift", http.StatusBadRequest)
		return
	}

	entries, err := handler.repo.ListLiftEntries(ctx, lift)
	if err != nil {
		log.Errorf("list lift entries for %s: %s", lift, err)
		http.Error(w, "failed to list lift entries", http.StatusInternalServerError)
		return
	}

	entriesJson, err := json.Marshal(entries)
	if err != nil {
		log.Errorf("list lift entries, marshal response: %s", err)
		http.Error(w, "failed to list lift entries", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entriesJson, http.StatusOK)
}

func (handler *Handler) HandleGetLift(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.getLift")
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	entry, err := handler.repo.GetLiftEntry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		log.Errorf("get lift entry %s: %s", id, err)
		http.Error(w, "failed to get lift entry", http.StatusInternalServerError)
		return
	}

	entryJson, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("get lift entry, marshal response: %s", err)
		http.Error(w, "failed to get lift entry", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entryJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteLift(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.deleteLift")
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	if err := handler.repo.DeleteLiftEntry(ctx, id); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete lift entry %s: %s", id, err)
		http.Error(w, "failed to delete lift entry", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"deletedId":"`+id+`"}`)
}

func (handler *Handler) HandleLiftProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.liftProgress")
	defer span.End()

	lift := mux.Vars(r)["lift"]
	progress, err := handler.analyzer.LiftProgress(ctx, lift)
	if err != nil {
		if errors.Is(err, ErrUnknownLift) {
			http.Error(w, "unknown lift", http.StatusBadRequest)
			return
		}
		log.Errorf("lift progress for %s: %s", lift, err)
		http.Error(w, "failed to get lift progress", http.StatusInternalServerError)
		return
	}

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("lift progress, marshal response: %s", err)
		http.Error(w, "failed to get lift progress", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, progressJson, http.StatusOK)
}

func (handler *Handler) HandleAddCardio(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.addCardio")
	defer span.End()

	var entry CardioEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Errorf("add cardio entry, unmarshal json params: %s", err)
		http.Error(w, "malformed cardio entry", http.StatusBadRequest)
		return
	}
	if err := entry.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	if err := handler.repo.AddCardioEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			http.Error(w, "entry already exists", http.StatusConflict)
			return
		}
		log.Errorf("add cardio entry: %s", err)
		http.Error(w, "failed to add cardio entry", http.StatusInternalServerError)
		return
	}

	entryJson, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("add cardio entry, marshal response: %s", err)
		http.Error(w, "failed to add cardio entry", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entryJson, http.StatusCreated)
}

func (handler *Handler) HandleListCardio(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.listCardio")
	defer span.End()

	machine := r.URL.Query().Get("machine")
	if machine != "" {
		if _, ok := knownMachines[machine]; !ok {
			http.Error(w, "unknown machine", http.StatusBadRequest)
			return
		}
	}

	entries, err := handler.repo.ListCardioEntries(ctx, machine)
	if err != nil {
		log.Errorf("list cardio entries: %s", err)
		http.Error(w, "failed to list cardio entries", http.StatusInternalServerError)
		return
	}

	entriesJson, err := json.Marshal(entries)
	if err != nil {
		log.Errorf("list cardio entries, marshal response: %s", err)
		http.Error(w, "failed to list cardio entries", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entriesJson, http.StatusOK)
}

// HandleAddRun stores a run entry, deriving the missing time or pace
// representation from the entered one.
func (handler *Handler) HandleAddRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.addRun")
	defer span.End()

	var entry RunEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Errorf("add run entry, unmarshal json params: %s", err)
		http.Error(w, "malformed run entry", http.StatusBadRequest)
		return
	}
	if entry.Rounds == 0 {
		entry.Rounds = 1
	}
	if err := entry.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	entry.Derive()

	if err := handler.repo.AddRunEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			http.Error(w, "entry already exists", http.StatusConflict)
			return
		}
		log.Errorf("add run entry: %s", err)
		http.Error(w, "failed to add run entry", http.StatusInternalServerError)
		return
	}

	entryJson, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("add run entry, marshal response: %s", err)
		http.Error(w, "failed to add run entry", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entryJson, http.StatusCreated)
}

func (handler *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.journal.listRuns")
	defer span.End()

	entries, err := handler.repo.ListRunEntries(ctx)
	if err != nil {
		log.Errorf("list run entries: %s", err)
		http.Error(w, "failed to list run entries", http.StatusInternalServerError)
		return
	}

	entriesJson, err := json.Marshal(entries)
	if err != nil {
		log.Errorf("list run entries, marshal response: %s", err)
		http.Error(w, "failed to list run entries", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entriesJson, http.StatusOK)
}
