package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Catalog — /v1/products
// ============================================================

func listProductsHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/products")
		defer span.End()

		products, err := svc.ListProducts(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

func listAllProductsHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/products/all")
		defer span.End()

		products, err := svc.ListAllProducts(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

func createProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/products")
		defer span.End()

		var in domain.NewProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		product, err := svc.CreateProduct(ctx, MemberFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	}
}

func updateProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/products/{productId}")
		defer span.End()

		id, err := idParam(r, "productId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var patch domain.ProductPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		product, err := svc.UpdateProduct(ctx, MemberFromContext(ctx), id, &patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, product)
	}
}

func deleteProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/products/{productId}")
		defer span.End()

		id, err := idParam(r, "productId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := svc.DeleteProduct(ctx, MemberFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
