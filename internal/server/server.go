package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"courtside/internal/compat"
	"courtside/internal/domain"
	"courtside/internal/engine"
	"courtside/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Compat   *compat.Aggregator
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot express interest while status is converted"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Courtside API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Courtside API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerUsers(group, cfg.Engine)
	registerMatches(group, cfg.Engine)
	registerInterest(group, cfg.Engine)
	registerConflicts(group, cfg.Engine)
	registerRanked(group, cfg.Engine, cfg.Compat)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ue engine.UnauthorizedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"status": ise.Status})
	}
	var de engine.DuplicateActionError
	if errors.As(err, &de) {
		return newAPIError(http.StatusConflict, "duplicate_action", err.Error(), nil)
	}
	var ce engine.CapacityExceededError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "capacity_exceeded", err.Error(), map[string]any{"slots_needed": ce.SlotsNeeded, "approved": ce.Approved})
	}
	if errors.Is(err, engine.ErrFieldUnavailable) {
		return newAPIError(http.StatusConflict, "field_unavailable", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrCreatorInterest) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join(basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Courtside API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		id := uuid.NewString()
		if input.Body.ID != nil && *input.Body.ID != "" {
			id = *input.Body.ID
		}
		u := domain.User{ID: id, Name: input.Body.Name, Tags: input.Body.Tags, CreatedAt: e.Now().UTC().Format(time.RFC3339)}
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerMatches(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-match",
		Method:        http.MethodPost,
		Path:          "/matches",
		Summary:       "Create draft match",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateMatchRequest `json:"body"`
	}) (*struct {
		Body MatchResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.DraftMatchCreateOptions{
			CreatorID:    actorID,
			Sport:        input.Body.Sport,
			StartsAt:     input.Body.StartsAt,
			EndsAt:       input.Body.EndsAt,
			SlotsNeeded:  input.Body.SlotsNeeded,
			RequiredTags: input.Body.RequiredTags,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.SkillLevel != nil {
			opts.SkillLevel = *input.Body.SkillLevel
		}
		if input.Body.LocationText != nil {
			opts.LocationText = *input.Body.LocationText
		}
		m, err := e.CreateDraftMatch(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MatchResponse `json:"body"`
		}{Body: matchResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-matches",
		Method:      http.MethodGet,
		Path:        "/matches",
		Summary:     "List draft matches",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CreatorID string `query:"creator_id"`
		Sport     string `query:"sport"`
		Status    string `query:"status"`
		Limit     int    `query:"limit"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedMatches `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListDraftMatches(ctx, repo.DraftMatchFilters{
			CreatorID:       input.CreatorID,
			Sport:           input.Sport,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMatches{Items: []MatchResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, m := range items {
			resp.Items = append(resp.Items, matchResponse(m))
		}
		return &struct {
			Body paginatedMatches `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-match",
		Method:      http.MethodGet,
		Path:        "/matches/{match_id}",
		Summary:     "Get draft match",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MatchID string `path:"match_id"`
	}) (*struct {
		Body MatchResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetDraftMatch(ctx, input.MatchID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MatchResponse `json:"body"`
		}{Body: matchResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-match",
		Method:      http.MethodPatch,
		Path:        "/matches/{match_id}",
		Summary:     "Update draft match",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		MatchID string             `path:"match_id"`
		Body    UpdateMatchRequest `json:"body"`
	}) (*struct {
		Body MatchResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateDraftMatch(ctx, input.MatchID, engine.DraftMatchPatch{
			Sport:        input.Body.Sport,
			SkillLevel:   input.Body.SkillLevel,
			LocationText: input.Body.LocationText,
			StartsAt:     input.Body.StartsAt,
			EndsAt:       input.Body.EndsAt,
			SlotsNeeded:  input.Body.SlotsNeeded,
			RequiredTags: input.Body.RequiredTags,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MatchResponse `json:"body"`
		}{Body: matchResponse(m)}, nil
	})

	type matchAction func(ctx context.Context, matchID, actorID string) (domain.DraftMatch, error)
	register := func(opID, pathSuffix, summary string, fn matchAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/matches/{match_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			MatchID string `path:"match_id"`
		}) (*struct {
			Body MatchResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			m, err := fn(ctx, input.MatchID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body MatchResponse `json:"body"`
			}{Body: matchResponse(m)}, nil
		})
	}
	register("lock-match", "lock", "Freeze recruitment for booking", e.InitiateLock)
	register("convert-match", "convert", "Convert to a confirmed match", e.Convert)
	register("cancel-match", "cancel", "Cancel draft match", e.CancelDraftMatch)

	huma.Register(api, huma.Operation{
		OperationID: "book-match",
		Method:      http.MethodPost,
		Path:        "/matches/{match_id}/book",
		Summary:     "Initiate field booking",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		MatchID string                 `path:"match_id"`
		Body    InitiateBookingRequest `json:"body"`
	}) (*struct {
		Body MatchResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.InitiateBooking(ctx, input.MatchID, actorID, input.Body.FieldID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MatchResponse `json:"body"`
		}{Body: matchResponse(m)}, nil
	})
}

func registerInterest(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "express-interest",
		Method:        http.MethodPost,
		Path:          "/matches/{match_id}/interest",
		Summary:       "Express interest in a match",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		MatchID string `path:"match_id"`
	}) (*struct {
		Body InterestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, report, err := e.ExpressInterest(ctx, input.MatchID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InterestResponse `json:"body"`
		}{Body: InterestResponse{Participant: participantResponse(p), Conflicts: report}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-interest",
		Method:      http.MethodDelete,
		Path:        "/matches/{match_id}/interest",
		Summary:     "Withdraw interest",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		MatchID string `path:"match_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Withdraw(ctx, input.MatchID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-participants",
		Method:      http.MethodGet,
		Path:        "/matches/{match_id}/participants",
		Summary:     "List participants",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MatchID string `path:"match_id"`
	}) (*struct {
		Body []ParticipantResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDraftMatch(ctx, input.MatchID); err != nil {
			return nil, handleError(err)
		}
		parts, err := e.Repo.ListParticipants(ctx, input.MatchID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ParticipantResponse, 0, len(parts))
		for _, p := range parts {
			out = append(out, participantResponse(p))
		}
		return &struct {
			Body []ParticipantResponse `json:"body"`
		}{Body: out}, nil
	})

	decide := func(opID, pathSuffix, summary string, approve bool) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/matches/{match_id}/participants/{user_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			MatchID string `path:"match_id"`
			UserID  string `path:"user_id"`
		}) (*struct {
			Body ParticipantResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			p, err := e.Decide(ctx, input.MatchID, input.UserID, actorID, approve)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ParticipantResponse `json:"body"`
			}{Body: participantResponse(p)}, nil
		})
	}
	decide("approve-participant", "approve", "Approve a pending participant", true)
	decide("reject-participant", "reject", "Reject a pending participant", false)

	huma.Register(api, huma.Operation{
		OperationID: "remove-participant",
		Method:      http.MethodDelete,
		Path:        "/matches/{match_id}/participants/{user_id}",
		Summary:     "Remove an approved participant",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		MatchID string `path:"match_id"`
		UserID  string `path:"user_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveApproved(ctx, input.MatchID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-conflicts",
		Method:      http.MethodPost,
		Path:        "/conflicts/check",
		Summary:     "Check a time window against the caller's commitments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CheckConflictsRequest `json:"body"`
	}) (*struct {
		Body domain.ConflictReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.CheckConflicts(ctx, actorID, input.Body.StartsAt, input.Body.EndsAt, input.Body.ExcludeID)
		if err != nil {
			return nil, handleError(err)
		}
		if report.Conflicts == nil {
			report.Conflicts = []domain.ConflictEntry{}
		}
		return &struct {
			Body domain.ConflictReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerRanked(api huma.API, e engine.Engine, agg *compat.Aggregator) {
	huma.Register(api, huma.Operation{
		OperationID: "ranked-matches",
		Method:      http.MethodGet,
		Path:        "/ranked-matches",
		Summary:     "List recruiting matches ranked by compatibility",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Sport string `query:"sport"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body RankedMatchesResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		matches, err := e.Repo.ListDraftMatches(ctx, repo.DraftMatchFilters{
			Sport:  input.Sport,
			Status: domain.DraftRecruiting,
			Limit:  limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := RankedMatchesResponse{Items: []RankedMatchResponse{}}
		byID := make(map[string]domain.DraftMatch, len(matches))
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			if m.CreatorID == actorID {
				continue
			}
			byID[m.ID] = m
			ids = append(ids, m.ID)
		}
		if agg == nil || len(ids) == 0 {
			resp.RankingDegraded = agg == nil && len(ids) > 0
			for _, id := range ids {
				resp.Items = append(resp.Items, RankedMatchResponse{Match: matchResponse(byID[id])})
			}
			return &struct {
				Body RankedMatchesResponse `json:"body"`
			}{Body: resp}, nil
		}
		results, degraded, err := agg.Rank(ctx, actorID, domain.ScoreContextDraftMatch, ids)
		if err != nil {
			return nil, handleError(err)
		}
		if degraded {
			// Provider exhausted its retry budget: present candidates
			// unranked rather than with invented scores.
			resp.RankingDegraded = true
			for _, id := range ids {
				resp.Items = append(resp.Items, RankedMatchResponse{Match: matchResponse(byID[id])})
			}
		} else {
			for _, r := range results {
				m, ok := byID[r.EntityID]
				if !ok {
					continue
				}
				score := r.Score
				resp.Items = append(resp.Items, RankedMatchResponse{Match: matchResponse(m), Score: &score})
			}
		}
		return &struct {
			Body RankedMatchesResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Topic       string `query:"topic"`
		Type        string `query:"type"`
		RecipientID string `query:"recipient_id"`
		Limit       int    `query:"limit"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Topic:       input.Topic,
			Type:        input.Type,
			RecipientID: input.RecipientID,
			Limit:       limit + 1,
			Cursor:      cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	return ts + "|" + id
}
