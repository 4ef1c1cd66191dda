package main

import (
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-planning-dashboard/shared/middleware"
	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

// Page paths
const (
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathAdmin     = "/admin"
)

// featurePages maps each feature area page to its access flag
var featurePages = map[string]string{
	"/problems":            models.FeatureProblems,
	"/customer-segments":   models.FeatureCustomerSegment,
	"/target-audiences":    models.FeatureTargetAudience,
	"/channels":            models.FeatureChannels,
	"/financial-entries":   models.FeatureFinance,
	"/kpis":                models.FeatureMetrics,
	"/tasks":               models.FeatureTasks,
	"/competitor-matrices": models.FeatureCompetitors,
	"/benefits":            models.FeatureBenefits,
	"/features":            models.FeatureFeatures,
}

// Viewer is what the gate knows about the requester
type Viewer struct {
	Authenticated bool
	IsMaster      bool
	Flags         models.AccessFlags
}

// viewerOf reads the identity attached by LoadSession
func viewerOf(c *gin.Context) Viewer {
	if _, ok := middleware.GetSessionRecord(c); !ok {
		return Viewer{}
	}
	flags, _ := c.Get(middleware.KeyAccessFlags)
	af, _ := flags.(models.AccessFlags)
	return Viewer{
		Authenticated: true,
		IsMaster:      c.GetBool(middleware.KeyIsMaster),
		Flags:         af,
	}
}

// Decide returns whether the page at p may be served to v, and otherwise the
// path to redirect to. Requests for files (a dot in the last segment) pass
// so the frontend's assets load on the login page.
func Decide(p string, v Viewer) (redirect string, allowed bool) {
	p = path.Clean("/" + p)
	if strings.Contains(path.Base(p), ".") {
		return "", true
	}

	if p == PathLogin || p == PathRegister {
		if v.Authenticated {
			return PathDashboard, false
		}
		return "", true
	}
	if !v.Authenticated {
		return PathLogin, false
	}

	switch {
	case p == PathDashboard:
		return "", true
	case under(p, PathAdmin):
		if v.IsMaster {
			return "", true
		}
		return PathDashboard, false
	}

	for page, feature := range featurePages {
		if under(p, page) {
			if v.IsMaster || v.Flags.Allows(feature) {
				return "", true
			}
			return PathDashboard, false
		}
	}
	return PathDashboard, false
}

// under reports whether p is page itself or one of its sub-paths
func under(p, page string) bool {
	return p == page || strings.HasPrefix(p, page+"/")
}
