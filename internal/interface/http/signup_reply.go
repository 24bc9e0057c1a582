package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-signup-flow/internal/application"
	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/pkg/response"
)

// ReplyKey is the gin context key under which the passthrough channel stores the Reply.
const ReplyKey = "signup.reply"

// Reply is the channel-neutral answer of a signup endpoint.
type Reply struct {
	// Status forces a status code. Only 3xx values are honoured in REST mode.
	Status   int
	View     string
	Redirect string
	Data     gin.H
	Err      error
	User     *entity.User
}

// StatusFor maps flow errors to HTTP statuses and a message safe to show.
func StatusFor(err error) (int, string) {
	msg := application.PublicMessage(err)
	switch application.KindOf(err) {
	case application.KindValidation:
		return http.StatusBadRequest, msg
	case application.KindConflict:
		return http.StatusConflict, msg
	case application.KindNotFound:
		return http.StatusNotFound, msg
	case application.KindExpired:
		return http.StatusGone, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

type channel interface {
	send(c *gin.Context, r Reply)
}

// restChannel answers with the JSON envelope.
type restChannel struct{}

func (restChannel) send(c *gin.Context, r Reply) {
	if r.Err != nil {
		status, msg := StatusFor(r.Err)
		resp := response.Error[any](c, status, msg, msg)
		if d, ok := r.Data["details"]; ok {
			resp.Meta = gin.H{"details": d}
		}
		response.Write(c, resp)
		return
	}
	if r.Redirect != "" && r.Status >= 300 && r.Status < 400 {
		c.Redirect(r.Status, r.Redirect)
		return
	}
	if len(r.Data) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	resp := response.Success[any](c, http.StatusOK, r.Data, "ok", nil)
	response.Write(c, resp)
}

// viewChannel renders the configured HTML views.
type viewChannel struct {
	title string
}

func (v viewChannel) send(c *gin.Context, r Reply) {
	if r.Redirect != "" {
		status := r.Status
		if status == 0 {
			status = http.StatusFound
		}
		c.Redirect(status, r.Redirect)
		return
	}
	if r.View == "" {
		c.String(http.StatusNotFound, "Not Found")
		return
	}

	status := http.StatusOK
	data := gin.H{"title": v.title, "result": true, "error": ""}
	for k, val := range r.Data {
		data[k] = val
	}
	if r.Err != nil {
		var msg string
		status, msg = StatusFor(r.Err)
		data["error"] = msg
		data["result"] = false
	} else if q := c.Query("error"); q != "" {
		data["error"] = q
	}
	if r.User != nil {
		data["user"] = gin.H{"name": r.User.Name, "email": r.User.Email}
	}
	c.HTML(status, r.View, data)
}

// passthroughChannel leaves the answer to the host: the Reply is stored on the
// context and any error is attached for the host error layer.
type passthroughChannel struct{}

func (passthroughChannel) send(c *gin.Context, r Reply) {
	c.Set(ReplyKey, r)
	if r.Err != nil {
		_ = c.Error(r.Err)
	}
}
