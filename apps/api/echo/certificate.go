package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/certificate"
)

type (
	CertificateService interface {
		List(ctx context.Context, studentID string) ([]certificate.Certificate, error)
		Verify(ctx context.Context, id, code string) (certificate.Certificate, error)
	}

	certificateApi struct {
		svc CertificateService
	}
)

func registerCertificateAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc CertificateService) {
	api := certificateApi{svc: svc}

	cg := g.Group("/certificates")
	cg.GET("", api.list, jwt)

	// un-authed endpoints: anyone holding the QR code may check it
	cg.GET("/:id/verify", api.verify)
}

// Handlers

func (api *certificateApi) list(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	certs, err := api.svc.List(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) verify(ctx echo.Context) error {
	cert, err := api.svc.Verify(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("code"))
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}
