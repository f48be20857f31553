package handler

import (
	"net/http"

	"github.com/dmfontes/callscribe/internal/api/response"
	"github.com/dmfontes/callscribe/internal/store"
)

// NewListRulesHandler returns the handler for GET /api/v1/rules, the
// read-only view of the active analysis ruleset.
func NewListRulesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := st.ListActiveRules(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list rules", nil)
			return
		}
		response.JSON(w, rules)
	}
}
