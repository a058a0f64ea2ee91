package fakeadmin

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type manifest struct {
	failed  bool
	message string
	headers []string
	payload []string
}

func (m manifest) String() string {
	var b strings.Builder
	if m.failed {
		b.WriteString("exit-code: FAILURE\n")
	} else {
		b.WriteString("exit-code: SUCCESS\n")
	}
	if m.message != "" {
		b.WriteString("message: " + m.message + "\n")
	}
	for _, h := range m.headers {
		b.WriteString(h + "\n")
	}
	b.WriteString("\n")
	for _, line := range m.payload {
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (s *Server) legacy(c *gin.Context) {
	op := c.Param("op")
	target := c.Query("target")
	name := c.Query("DEFAULT")

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.failure(op); ok {
		c.String(http.StatusOK, manifest{failed: true, message: msg}.String())
		return
	}

	var m manifest
	switch op {
	case "version":
		m.payload = []string{s.Version}
	case "location":
		m.payload = []string{"Base-Root=/opt/appserver", "Instance-Root=/opt/appserver/domains/domain1"}
	case "list-clusters":
		for cluster := range s.clusters {
			m.payload = append(m.payload, cluster)
		}
	case "list-web-services":
		m.payload = []string{"HelloService"}
	case "list-applications":
		m.payload = s.appNames(target)
	case "start-cluster", "stop-cluster":
		instances, ok := s.clusters[target]
		if !ok {
			m = manifest{failed: true, message: errNotFound("cluster", target)}
			break
		}
		s.running[target] = op == "start-cluster"
		for _, inst := range instances {
			m.headers = append(m.headers, "children."+inst+".exit-code: SUCCESS")
		}
	case "start-instance", "stop-instance":
		m.message = "instance " + target + " done"
	case "deploy":
		path := c.Query("path")
		if path == "" {
			m = manifest{failed: true, message: "path is required"}
			break
		}
		if s.apps[target] == nil {
			s.apps[target] = map[string]*app{}
		}
		props := map[string]string{}
		for _, pair := range strings.Split(c.Query("property"), ":") {
			if k, v, ok := strings.Cut(pair, "="); ok {
				props[k] = v
			}
		}
		s.apps[target][name] = &app{path: path, enabled: true, props: props}
		m.message = "Application deployed with name " + name
	case "undeploy", "enable", "disable":
		a, ok := s.apps[target][name]
		if !ok {
			m = manifest{failed: true, message: errNotFound("application", name)}
			break
		}
		switch op {
		case "undeploy":
			delete(s.apps[target], name)
		case "enable":
			a.enabled = true
		case "disable":
			a.enabled = false
		}
	case "get":
		props := s.matchProperties(c.Query("pattern"))
		for _, k := range sortedKeys(props) {
			m.payload = append(m.payload, k+"="+props[k])
		}
	case "set":
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		for _, line := range strings.Split(string(body), "\n") {
			if k, v, ok := strings.Cut(line, "="); ok {
				s.props[k] = v
			}
		}
	default:
		c.String(http.StatusNotFound, "Command "+op+" not found")
		return
	}

	c.String(http.StatusOK, m.String())
}
