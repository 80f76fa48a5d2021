package board

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"
	"gorm.io/gorm"

	"hamboard/api/endpoints"
	"hamboard/board/store"
	"hamboard/board/types"
	"hamboard/identity"
	"hamboard/pkg/helper"
	"hamboard/pkg/helper/gormx"
	"hamboard/visitor"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// Issuer issue visitor certificates
type Issuer interface {
	Issue(ctx context.Context, nickname string) ([]byte, error)
}

// TrustAnchor provides the PEM bundle clients should trust
type TrustAnchor interface {
	TrustAnchor() ([]byte, error)
}

// Options board handler options
type Options struct {
	// TrustQueryDN take identity from the dn query parameter when no client certificate is presented.
	// Only for local development; anyone can claim any identity.
	TrustQueryDN bool
}

// @title    hamboard
// @version  v1
// @BasePath /
type boardAPI struct {
	store  store.Interface
	issuer Issuer
	anchor TrustAnchor
	opts   Options
}

var _ endpoints.Endpoint = (*boardAPI)(nil)

func New(store store.Interface, issuer Issuer, anchor TrustAnchor, opts Options) *boardAPI {
	return &boardAPI{
		store:  store,
		issuer: issuer,
		anchor: anchor,
		opts:   opts,
	}
}

func (app *boardAPI) PathAndName() (string, string) { return "", "board handler" }

// Context request context with authenticated identity
type Context struct {
	echo.Context

	identity *identity.Identity // nil for anonymous
}

func customContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*Context)
			if !ok {
				cc = &Context{Context: c}
			}

			return next(cc)
		}
	}
}

func (app *boardAPI) Route(e *echo.Group) {
	e.Use(handleError, customContext(), app.extractIdentity())

	e.GET("/", app.index)
	e.GET("/messages", app.listMessages)
	e.POST("/messages", app.postMessage, requireIdentity)
	e.GET("/messages/:message_id", app.getMessage)
	e.GET("/visitor", app.visitorForm)
	e.POST("/visitor", app.issueVisitor)
	e.GET("/ca.pem", app.trustAnchor)
}

// extractIdentity identity from verified client certificate, or from dn query parameter if allowed.
// Requests without a parsable identity are anonymous.
func (app *boardAPI) extractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.(*Context).identity = app.identityOf(c)
			return next(c)
		}
	}
}

func (app *boardAPI) identityOf(c echo.Context) *identity.Identity {
	req := c.Request()
	if req.TLS != nil && len(req.TLS.VerifiedChains) > 0 && len(req.TLS.VerifiedChains[0]) > 0 {
		id, err := identity.FromCertificate(req.TLS.VerifiedChains[0][0])
		if err != nil {
			log.Debugf("client certificate: %v", err)
			return nil
		}
		return id
	}

	if !app.opts.TrustQueryDN {
		return nil
	}

	dn := c.QueryParam("dn")
	if dn == "" {
		return nil
	}

	id, err := identity.Parse(dn)
	if err != nil {
		log.Debugf("dn %q: %v", dn, err)
		return nil
	}
	return id
}

func requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.(*Context).identity == nil {
			return echo.ErrUnauthorized
		}

		return next(c)
	}
}

func handleError(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil {
			return err
		}

		if _, ok := err.(*echo.HTTPError); ok {
			return err
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			code, message = http.StatusNotFound, "not found"
		case errors.Is(err, gormx.ErrUniqueConstraintFailed):
			code, message = http.StatusConflict, "conflict"
		case helper.IsValidationError(err):
			code, message = http.StatusBadRequest, err.Error()
		case errors.Is(err, visitor.ErrInvalidNickname):
			code, message = http.StatusBadRequest, "invalid nickname"
		case errors.Is(err, visitor.ErrIssuance):
			message = visitor.ErrIssuance.Error()
		default:
			log.Debugf("unhandled err=%T, %v", err, err)
		}

		log.Debugf("%d: %+v", code, err)
		return echo.NewHTTPError(code, message).SetInternal(err)
	}
}

func render(c echo.Context, code int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}

	return c.HTMLBlob(code, buf.Bytes())
}

type indexPage struct {
	Identity *identity.Identity
	Messages []*types.Message
}

// index board page
func (app *boardAPI) index(c echo.Context) error {
	messages, err := app.store.ListMessages(c.Request().Context(), store.MessageListOpt{})
	if err != nil {
		return err
	}

	return render(c, http.StatusOK, "index.html", &indexPage{
		Identity: c.(*Context).identity,
		Messages: messages,
	})
}

type postMessageRequest struct {
	Content string `form:"content" json:"content" validate:"required,max=1000"`
}

// postMessage post message as the authenticated member
//
// @Summary post message
// @Accept  x-www-form-urlencoded
// @Param   content formData string true "message"
// @Success 303
// @Failure 401
// @Router  /messages [post]
func (app *boardAPI) postMessage(c echo.Context) error {
	var req postMessageRequest
	if err := helper.Bind(c, &req); err != nil {
		return err
	}

	msg, err := app.store.CreateMessage(c.Request().Context(), c.(*Context).identity.Callsign, req.Content)
	if err != nil {
		return err
	}

	log.Debugf("message %s posted by %s", msg.ID, msg.Author)
	return c.Redirect(http.StatusSeeOther, "/")
}

type listMessagesRequest struct {
	Author string `query:"author"`
	Limit  int    `query:"limit" validate:"min=0,max=1000"`
}

// listMessages list messages newest first
//
// @Summary list messages
// @Produce json
// @Param   author query string false "callsign"
// @Param   limit  query int    false "max messages"
// @Success 200 {array} types.Message
// @Router  /messages [get]
func (app *boardAPI) listMessages(c echo.Context) error {
	var req listMessagesRequest
	if err := helper.Bind(c, &req); err != nil {
		return err
	}

	messages, err := app.store.ListMessages(c.Request().Context(), store.MessageListOpt{Author: req.Author, Limit: req.Limit})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messages)
}

// getMessage get message
//
// @Summary get message
// @Produce json
// @Param   message_id path string true "message id"
// @Success 200 {object} types.Message
// @Failure 404
// @Router  /messages/{message_id} [get]
func (app *boardAPI) getMessage(c echo.Context) error {
	msg, err := app.store.GetMessage(c.Request().Context(), c.Param("message_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, msg)
}

func (app *boardAPI) visitorForm(c echo.Context) error {
	return render(c, http.StatusOK, "visitor.html", nil)
}

type issueVisitorRequest struct {
	Nickname string `form:"nickname"`
}

// issueVisitor issue visitor certificate as PKCS#12 archive
//
// @Summary issue visitor certificate
// @Accept  x-www-form-urlencoded
// @Produce application/x-pkcs12
// @Param   nickname formData string true "nickname"
// @Success 200
// @Failure 400
// @Failure 500
// @Router  /visitor [post]
func (app *boardAPI) issueVisitor(c echo.Context) error {
	var req issueVisitorRequest
	if err := helper.Bind(c, &req); err != nil {
		return err
	}

	p12, err := app.issuer.Issue(c.Request().Context(), req.Nickname)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="client.p12"`)
	return c.Blob(http.StatusOK, "application/x-pkcs12", p12)
}

// trustAnchor download trust anchor
//
// @Summary trust anchor
// @Produce application/x-pem-file
// @Success 200
// @Router  /ca.pem [get]
func (app *boardAPI) trustAnchor(c echo.Context) error {
	anchor, err := app.anchor.TrustAnchor()
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, "application/x-pem-file", anchor)
}
