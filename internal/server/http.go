package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
)

type httpServer struct {
	log *logrus.Logger

	router *gin.Engine
}

type matrixResponse struct {
	PreviewID string `json:"previewId"`

	ParallelLimit  int                         `json:"parallelLimit"`
	Configurations []simsched.RunConfiguration `json:"configurations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *httpServer) Init(port int, log *logrus.Logger) error {
	h.setup(log)

	go func() {
		if err := h.router.Run(fmt.Sprintf("localhost:%d", port)); err != nil {
			h.log.Errorf("Preview server stopped - %v", err)
		}
	}()
	return nil
}

func (h *httpServer) setup(log *logrus.Logger) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	h.log = log

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.getHealthz)
	router.POST("/matrix", h.postMatrix)

	h.router = router
}

func (h *httpServer) getHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// postMatrix expands the request body it receives into the matrix that would be run
func (h *httpServer) postMatrix(c *gin.Context) {
	issueID := 0
	if issue := c.Query("issue"); issue != "" {
		var err error
		issueID, err = strconv.Atoi(issue)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("%s is not a valid issue number", issue)})
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	id := uniuri.New()
	h.log.WithField("preview-id", id).Debugf("Expanding request body of issue %d", issueID)

	matrix := (&simsched.Expander{Log: h.log}).Expand(simsched.ParseForm(string(body)), issueID)

	configurations := []simsched.RunConfiguration(matrix)
	if configurations == nil {
		configurations = []simsched.RunConfiguration{}
	}
	c.JSON(http.StatusOK, matrixResponse{
		PreviewID:      id,
		ParallelLimit:  matrix.ParallelLimit(),
		Configurations: configurations,
	})
}
