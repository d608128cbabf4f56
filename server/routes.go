package server

import (
	"cmp"
	"slices"

	"github.com/gin-gonic/gin"
)

var systemPaths = map[string]bool{
	"/health": true,
	"/info":   true,
}

// Routes lists the registered routes, API routes first and system routes
// last, each group ordered by path.
func (s *Server) Routes() gin.RoutesInfo {
	routes := s.engine.Routes()
	slices.SortFunc(routes, func(a, b gin.RouteInfo) int {
		if sa, sb := systemPaths[a.Path], systemPaths[b.Path]; sa != sb {
			if sa {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Method, b.Method))
	})
	return routes
}

// LogRoutes logs every registered route once, typically right before Start.
func (s *Server) LogRoutes() {
	for _, r := range s.Routes() {
		kind := "api"
		if systemPaths[r.Path] {
			kind = "system"
		}
		s.log.Info("route registered", map[string]interface{}{
			"method": r.Method,
			"path":   r.Path,
			"kind":   kind,
		})
	}
}
