package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/r-cryptocurrency/moonbridge/db"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/store"
)

// Presenter serves a read-only HTTP view over the processing records, meant
// for operators checking what the relayer has seen and settled.
type Presenter struct {
	logger logging.Logger
	store  store.RecordStore
	root   chi.Router
}

func NewPresenter(logger logging.Logger, recordStore store.RecordStore) *Presenter {
	return &Presenter{
		logger: logger,
		store:  recordStore,
		root:   chi.NewMux(),
	}
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	p.root.Use(middleware.Throttle(5))
	p.root.Use(middleware.RequestID)
	p.root.Use(NewRequestLogger(p.logger))
	p.root.Get("/health", p.Health)
	p.root.Get("/records", p.wrapJSONHandler(p.ListRecords))
	p.root.Get("/records/{bridgeID:0x[0-9a-fA-F]{64}}", p.wrapJSONHandler(p.GetRecord))
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (p *Presenter) wrapJSONHandler(handler func(ctx context.Context) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r.Context())
		if errors.Is(err, db.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			p.logger.WithError(err).Error("failed to handle request")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err = enc.Encode(res); err != nil {
			p.logger.WithError(err).Error("failed to marshal JSON result")
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func (p *Presenter) ListRecords(ctx context.Context) (interface{}, error) {
	return p.store.List(ctx)
}

func (p *Presenter) GetRecord(ctx context.Context) (interface{}, error) {
	bridgeID := common.HexToHash(chi.URLParamFromCtx(ctx, "bridgeID"))
	return p.store.Get(ctx, bridgeID)
}
