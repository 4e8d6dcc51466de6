package mapstore

import (
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/occgrid/internal/httputil"
)

type sessionJSON struct {
	ID         string     `json:"id"`
	Resolution float64    `json:"resolution"`
	RegionDims [3]int     `json:"region_voxel_dims"`
	Origin     [3]float64 `json:"origin"`
	Stamp      uint64     `json:"stamp"`
	ChunkCount int        `json:"chunk_count"`
	CreatedAt  time.Time  `json:"created_at"`
}

func sessionToJSON(info SessionInfo) sessionJSON {
	d := info.Config.RegionVoxelDims
	return sessionJSON{
		ID:         info.ID,
		Resolution: info.Config.Resolution,
		RegionDims: [3]int{int(d[0]), int(d[1]), int(d[2])},
		Origin:     [3]float64{info.Origin.X, info.Origin.Y, info.Origin.Z},
		Stamp:      info.Stamp,
		ChunkCount: info.ChunkCount,
		CreatedAt:  info.CreatedAt,
	}
}

// SessionsHandler serves the saved session index as JSON. GET without an id
// lists all sessions; GET with ?id= returns one session; DELETE with ?id=
// removes a session.
func (s *Store) SessionsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		switch r.Method {
		case http.MethodGet:
			if id == "" {
				sessions, err := s.Sessions()
				if err != nil {
					httputil.InternalServerError(w, err.Error())
					return
				}
				out := make([]sessionJSON, 0, len(sessions))
				for _, info := range sessions {
					out = append(out, sessionToJSON(info))
				}
				httputil.WriteJSONOK(w, out)
				return
			}
			info, err := s.Info(id)
			if errors.Is(err, ErrUnknownSession) {
				httputil.NotFound(w, err.Error())
				return
			}
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			httputil.WriteJSONOK(w, sessionToJSON(info))
		case http.MethodDelete:
			if id == "" {
				httputil.BadRequest(w, "id parameter is required")
				return
			}
			err := s.Delete(id)
			if errors.Is(err, ErrUnknownSession) {
				httputil.NotFound(w, err.Error())
				return
			}
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			httputil.WriteJSONOK(w, map[string]string{"deleted": id})
		default:
			httputil.MethodNotAllowed(w)
		}
	})
}
