package fakeadmin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type subReport struct {
	ExitCode string `json:"exit_code"`
	Message  string `json:"message,omitempty"`
}

type envelope struct {
	ExitCode   string      `json:"exit_code"`
	Message    string      `json:"message,omitempty"`
	Payload    any         `json:"payload,omitempty"`
	SubReports []subReport `json:"subReports,omitempty"`
}

func success(payload any) envelope {
	return envelope{ExitCode: "SUCCESS", Payload: payload}
}

func failure(message string) envelope {
	return envelope{ExitCode: "FAILURE", Message: message}
}

func (s *Server) restRoutes(g *gin.RouterGroup) {
	g.Use(requireRequestedBy)

	g.GET("/version", s.restOp("version", func(c *gin.Context) (int, envelope) {
		return http.StatusOK, success(s.Version)
	}))
	g.GET("/location", s.restOp("location", func(c *gin.Context) (int, envelope) {
		return http.StatusOK, success(map[string]string{
			"Base-Root":     "/opt/appserver",
			"Instance-Root": "/opt/appserver/domains/domain1",
		})
	}))
	g.GET("/clusters", s.restOp("list-clusters", func(c *gin.Context) (int, envelope) {
		names := make([]string, 0, len(s.clusters))
		for name := range s.clusters {
			names = append(names, name)
		}
		return http.StatusOK, success(names)
	}))
	g.GET("/web-services", s.restOp("list-web-services", func(c *gin.Context) (int, envelope) {
		return http.StatusOK, success([]string{"HelloService"})
	}))
	g.GET("/targets/:target/applications", s.restOp("list-applications", func(c *gin.Context) (int, envelope) {
		return http.StatusOK, success(s.appNames(c.Param("target")))
	}))
	g.POST("/targets/:target/applications", s.restOp("deploy", s.restDeploy))
	g.DELETE("/targets/:target/applications/:name", s.restOp("undeploy", func(c *gin.Context) (int, envelope) {
		return s.restApp(c, func(target, name string, _ *app) { delete(s.apps[target], name) })
	}))
	g.POST("/targets/:target/applications/:name/:action", func(c *gin.Context) {
		action := c.Param("action")
		if action != "enable" && action != "disable" {
			c.JSON(http.StatusNotFound, failure("unknown action "+action))
			return
		}
		s.restOp(action, func(c *gin.Context) (int, envelope) {
			return s.restApp(c, func(_, _ string, a *app) { a.enabled = action == "enable" })
		})(c)
	})
	g.GET("/targets/:target/applications/:name/enabled", s.restOp("application-enabled", func(c *gin.Context) (int, envelope) {
		a, ok := s.apps[c.Param("target")][c.Param("name")]
		if !ok {
			return http.StatusNotFound, failure(errNotFound("application", c.Param("name")))
		}
		return http.StatusOK, success(a.enabled)
	}))
	g.POST("/clusters/:cluster/:action", func(c *gin.Context) {
		action := c.Param("action")
		s.restOp(action+"-cluster", func(c *gin.Context) (int, envelope) {
			cluster := c.Param("cluster")
			instances, ok := s.clusters[cluster]
			if !ok {
				return http.StatusNotFound, failure(errNotFound("cluster", cluster))
			}
			s.running[cluster] = action == "start"
			env := success(nil)
			for range instances {
				env.SubReports = append(env.SubReports, subReport{ExitCode: "SUCCESS"})
			}
			return http.StatusOK, env
		})(c)
	})
	g.POST("/instances/:instance/:action", func(c *gin.Context) {
		s.restOp(c.Param("action")+"-instance", func(c *gin.Context) (int, envelope) {
			return http.StatusOK, envelope{ExitCode: "SUCCESS", Message: "instance " + c.Param("instance") + " done"}
		})(c)
	})
	g.GET("/properties", s.restOp("get", func(c *gin.Context) (int, envelope) {
		return http.StatusOK, success(s.matchProperties(c.Query("pattern")))
	}))
	g.POST("/properties", s.restOp("set", func(c *gin.Context) (int, envelope) {
		if err := c.Request.ParseForm(); err != nil {
			return http.StatusBadRequest, failure(err.Error())
		}
		for key, values := range c.Request.PostForm {
			if k, ok := strings.CutPrefix(key, "property."); ok && len(values) > 0 {
				s.props[k] = values[0]
			}
		}
		return http.StatusOK, success(nil)
	}))
}

// requireRequestedBy rejects mutating calls that lack X-Requested-By.
func requireRequestedBy(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.GetHeader("X-Requested-By") == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, failure("missing X-Requested-By header"))
		return
	}
	c.Next()
}

func (s *Server) restOp(op string, handle func(*gin.Context) (int, envelope)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if idx, ok := c.Get(requestIndexKey); ok {
			s.requests[idx.(int)].Operation = op
		}
		if msg, ok := s.failure(op); ok {
			c.JSON(http.StatusOK, failure(msg))
			return
		}
		code, env := handle(c)
		c.JSON(code, env)
	}
}

// restDeploy expects s.mu to be held.
func (s *Server) restDeploy(c *gin.Context) (int, envelope) {
	if err := c.Request.ParseMultipartForm(8 << 20); err != nil {
		return http.StatusBadRequest, failure("expected multipart body: " + err.Error())
	}
	form := c.Request.MultipartForm.Value
	first := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	target, name, path := c.Param("target"), first("name"), first("path")
	if name == "" || path == "" {
		return http.StatusBadRequest, failure("name and path are required")
	}
	props := map[string]string{}
	for key := range form {
		if k, ok := strings.CutPrefix(key, "property."); ok {
			props[k] = first(key)
		}
	}
	if s.apps[target] == nil {
		s.apps[target] = map[string]*app{}
	}
	s.apps[target][name] = &app{path: path, enabled: true, props: props}
	return http.StatusOK, envelope{ExitCode: "SUCCESS", Message: "Application deployed with name " + name}
}

// restApp expects s.mu to be held.
func (s *Server) restApp(c *gin.Context, apply func(target, name string, a *app)) (int, envelope) {
	target, name := c.Param("target"), c.Param("name")
	a, ok := s.apps[target][name]
	if !ok {
		return http.StatusNotFound, failure(errNotFound("application", name))
	}
	apply(target, name, a)
	return http.StatusOK, success(nil)
}
