package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/vcs"
)

const headerAuthorID = "X-Author-ID"

// Service holds the versioning engine and its storage dependencies.
type Service struct {
	engine  *vcs.Engine
	store   storage.Store
	archive storage.Archive
	log     logrus.FieldLogger
}

// New constructs the service wiring: archive, store backend, and engine.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Service, error) {
	var archive storage.Archive
	if cfg.Retention.ArchivePath != "" {
		arc, err := storage.NewBoltArchive(cfg.Retention.ArchivePath)
		if err != nil {
			return nil, err
		}
		archive = arc
	}

	options := storage.Options{
		Archive: archive,
		Retention: storage.RetentionDefaults{
			HotCommitLimit: cfg.Retention.HotCommitLimit,
			HotDuration:    cfg.Retention.HotDuration,
		},
	}

	var (
		store storage.Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.StorageBackendKeyDB:
		store, err = storage.NewKeyDBStore(cfg.Storage.KeyDB, options)
		if err != nil {
			if archive != nil {
				_ = archive.Close()
			}
			return nil, err
		}
	default:
		store = storage.NewMemoryStore(options)
	}

	engine, err := vcs.NewEngine(store, vcs.EngineOptions{
		Logger:       log,
		CacheTTL:     cfg.Cache.TTL,
		CacheEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		return nil, err
	}

	return &Service{engine: engine, store: store, archive: archive, log: log}, nil
}

// Routes mounts the REST API onto a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Route("/repos", func(r chi.Router) {
		r.Post("/", s.handleCreateRepository)
		r.Route("/{repoID}", func(r chi.Router) {
			r.Get("/", s.handleGetRepository)
			r.Delete("/", s.handleDeleteRepository)
			r.Post("/fork", s.handleFork)

			r.Get("/branches", s.handleListBranches)
			r.Post("/branches", s.handleCreateBranch)
			r.Delete("/branches/{branch}", s.handleDeleteBranch)
			r.Post("/branches/{branch}/commits", s.handleCommit)
			r.Get("/branches/{branch}/blame", s.handleBlame)

			r.Get("/commits", s.handleHistory)
			r.Get("/commits/{commitID}", s.handleGetCommit)
			r.Get("/diff", s.handleDiff)

			r.Post("/merge", s.handleMerge)
			r.Post("/cherry-pick", s.handleCherryPick)
			r.Post("/revert", s.handleRevert)

			r.Get("/tags", s.handleListTags)
			r.Post("/tags", s.handleCreateTag)
		})
	})

	r.Get("/policies", s.handleGetPolicy)
	r.Post("/policies", s.handleSetPolicy)
}

func (s *Service) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		Name           string `json:"name"`
		Description    string `json:"description,omitempty"`
		DefaultBranch  string `json:"defaultBranch,omitempty"`
		InitialContent string `json:"initialContent,omitempty"`
		IsPublic       bool   `json:"isPublic"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	repo, err := s.engine.CreateRepository(r.Context(), vcs.CreateRepositoryInput{
		OwnerID:        authorID,
		Name:           req.Name,
		Description:    req.Description,
		IsPublic:       req.IsPublic,
		DefaultBranch:  req.DefaultBranch,
		InitialContent: req.InitialContent,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	branches, err := s.engine.ListBranches(r.Context(), repo.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"repository": repo,
		"branches":   branches,
	})
}

func (s *Service) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	repo, err := s.engine.GetRepository(r.Context(), chi.URLParam(r, "repoID"), authorID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	branches, err := s.engine.ListBranches(r.Context(), repo.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repository": repo,
		"branches":   branches,
	})
}

func (s *Service) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteRepository(r.Context(), chi.URLParam(r, "repoID"), authorID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Service) handleFork(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	fork, err := s.engine.ForkRepository(r.Context(), chi.URLParam(r, "repoID"), authorID, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

func (s *Service) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.engine.ListBranches(r.Context(), chi.URLParam(r, "repoID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (s *Service) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		Name         string `json:"name"`
		SourceBranch string `json:"sourceBranch,omitempty"`
		Description  string `json:"description,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	branch, err := s.engine.CreateBranch(r.Context(), chi.URLParam(r, "repoID"), authorID, req.Name, req.SourceBranch, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (s *Service) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	err := s.engine.DeleteBranch(r.Context(), chi.URLParam(r, "repoID"), chi.URLParam(r, "branch"), authorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Service) handleCommit(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message,omitempty"`
		Content string `json:"content"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	commit, err := s.engine.Commit(r.Context(), chi.URLParam(r, "repoID"), chi.URLParam(r, "branch"), vcs.CommitInput{
		Message:  req.Message,
		Content:  req.Content,
		AuthorID: authorID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := s.queryInt(w, query.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := s.queryInt(w, query.Get("offset"), "offset")
	if !ok {
		return
	}

	commits, err := s.engine.History(r.Context(), chi.URLParam(r, "repoID"), query.Get("branch"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

func (s *Service) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	commit, err := s.engine.GetCommit(r.Context(), chi.URLParam(r, "repoID"), chi.URLParam(r, "commitID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commit)
}

func (s *Service) handleDiff(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from query parameter required"})
		return
	}

	diff, err := s.engine.GetDiff(r.Context(), chi.URLParam(r, "repoID"), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Service) handleMerge(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		SourceBranch string `json:"sourceBranch"`
		TargetBranch string `json:"targetBranch"`
		Message      string `json:"message,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.SourceBranch == "" || req.TargetBranch == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sourceBranch and targetBranch are required"})
		return
	}

	result, err := s.engine.Merge(r.Context(), chi.URLParam(r, "repoID"), req.SourceBranch, req.TargetBranch, authorID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleCherryPick(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		CommitID     string `json:"commitId"`
		TargetBranch string `json:"targetBranch"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.CommitID == "" || req.TargetBranch == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "commitId and targetBranch are required"})
		return
	}

	commit, err := s.engine.CherryPick(r.Context(), chi.URLParam(r, "repoID"), req.CommitID, req.TargetBranch, authorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

func (s *Service) handleRevert(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		CommitID string `json:"commitId"`
		Branch   string `json:"branch"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.CommitID == "" || req.Branch == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "commitId and branch are required"})
		return
	}

	commit, err := s.engine.Revert(r.Context(), chi.URLParam(r, "repoID"), req.CommitID, req.Branch, authorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

func (s *Service) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.engine.ListTags(r.Context(), chi.URLParam(r, "repoID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Service) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	authorID, ok := s.author(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		CommitID string `json:"commitId"`
		Message  string `json:"message,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	tag, err := s.engine.CreateTag(r.Context(), chi.URLParam(r, "repoID"), req.Name, req.CommitID, authorID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Service) handleBlame(w http.ResponseWriter, r *http.Request) {
	blame, err := s.engine.Blame(r.Context(), chi.URLParam(r, "repoID"), chi.URLParam(r, "branch"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blame)
}

type policyRequest struct {
	RepoID         string `json:"repoId"`
	HotCommitLimit *int   `json:"hotCommitLimit,omitempty"`
	HotDuration    string `json:"hotDuration,omitempty"`
}

type policyResponse struct {
	RepoID         string `json:"repoId"`
	HotCommitLimit int    `json:"hotCommitLimit,omitempty"`
	HotDuration    string `json:"hotDuration,omitempty"`
	Locked         bool   `json:"locked"`
}

func (s *Service) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RepoID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "repoId is required"})
		return
	}

	policy := storage.RetentionPolicy{RepoID: req.RepoID}
	if req.HotCommitLimit != nil {
		policy.HotCommitLimit = *req.HotCommitLimit
	}
	if req.HotDuration != "" {
		d, err := time.ParseDuration(req.HotDuration)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotDuration"})
			return
		}
		policy.HotDuration = d
	}

	policy, err := s.store.SetPolicy(r.Context(), policy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, makePolicyResponse(policy))
}

func (s *Service) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	repoID := r.URL.Query().Get("repoId")
	if repoID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "repoId query parameter required"})
		return
	}

	policy, err := s.store.GetPolicy(r.Context(), repoID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, makePolicyResponse(policy))
}

func makePolicyResponse(policy storage.RetentionPolicy) policyResponse {
	resp := policyResponse{
		RepoID:         policy.RepoID,
		HotCommitLimit: policy.HotCommitLimit,
		Locked:         policy.Locked,
	}
	if policy.HotDuration > 0 {
		resp.HotDuration = policy.HotDuration.String()
	}
	return resp
}

func (s *Service) author(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(headerAuthorID))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": headerAuthorID + " header is required"})
		return "", false
	}
	return id, true
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func (s *Service) queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	var notFound *storage.NotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
		return
	}

	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": conflict.Error()})
		return
	}

	var concurrent *storage.ConcurrentModificationError
	if errors.As(err, &concurrent) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": concurrent.Error()})
		return
	}

	var validation *storage.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
		return
	}

	var denied *vcs.AccessDeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": denied.Error()})
		return
	}

	var invalid *vcs.InvalidOperationError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": invalid.Error()})
		return
	}

	s.log.WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
