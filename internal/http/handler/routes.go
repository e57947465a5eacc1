package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parse, delegate to a service, map errors.
func RegisterRoutes(
	app *fiber.App,
	db *sql.DB,
	items *service.ItemService,
	tree *service.TreeService,
	requests *service.AccessRequestService,
) {
	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// Reads are open to any principal; every tree mutation is admin only.
	itemRoutes := app.Group("/items", middleware.Principal())
	itemRoutes.Post("/folder", middleware.RequireAdmin(), createFolder(items))
	itemRoutes.Post("/upload", middleware.RequireAdmin(), uploadFiles(items))
	itemRoutes.Get("/", listChildren(items))
	itemRoutes.Get("/departments", listDepartments(items))
	itemRoutes.Get("/folder/:id/contents", listFolderContents(items))
	itemRoutes.Get("/:id", getItem(items))
	itemRoutes.Get("/:id/open", openItem(items))
	itemRoutes.Put("/:id", middleware.RequireAdmin(), updateItem(items, tree))
	itemRoutes.Put("/:id/access", middleware.RequireAdmin(), updateAccess(items))
	itemRoutes.Put("/:id/expiry", middleware.RequireAdmin(), updateExpiry(items))
	itemRoutes.Put("/:id/assign", middleware.RequireAdmin(), assignCompany(tree))
	itemRoutes.Put("/:id/share-departments", middleware.RequireAdmin(), shareDepartments(items))
	itemRoutes.Delete("/:id", middleware.RequireAdmin(), deleteItem(tree))

	reqRoutes := app.Group("/access-requests", middleware.Principal())
	reqRoutes.Post("/", createAccessRequest(requests))
	reqRoutes.Get("/", middleware.RequireAdmin(), listAccessRequests(requests))
	reqRoutes.Get("/check/:itemId", checkAccessRequest(requests))
	reqRoutes.Patch("/:id", middleware.RequireAdmin(), setAccessRequestStatus(requests))
}

type metadataBody struct {
	ExpiryDate   *time.Time       `json:"expiryDate"`
	IsRestricted bool             `json:"isRestricted"`
	AllowedUsers []string         `json:"allowedUsers"`
	Department   model.Department `json:"department"`
}

func (b metadataBody) toMetadata() service.ItemMetadata {
	return service.ItemMetadata{
		ExpiryDate:   b.ExpiryDate,
		IsRestricted: b.IsRestricted,
		AllowedUsers: b.AllowedUsers,
		Department:   b.Department,
	}
}

func createFolder(items *service.ItemService) fiber.Handler {
	type body struct {
		metadataBody
		Name      string  `json:"name"`
		ParentID  *string `json:"parentId"`
		CompanyID string  `json:"companyId"`
	}
	return func(c *fiber.Ctx) error {
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		folder, err := items.CreateFolder(c.UserContext(), middleware.PrincipalFromCtx(c), service.CreateFolderRequest{
			Name:      b.Name,
			ParentID:  b.ParentID,
			CompanyID: b.CompanyID,
			Metadata:  b.toMetadata(),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(folder)
	}
}

// uploadFiles accepts multipart/form-data: one or more parts named "files",
// an optional "relativePaths" JSON array aligned with the file parts, and the
// usual metadata fields as form values.
func uploadFiles(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "multipart form required")
		}
		headers := form.File["files"]
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "at least one file is required")
		}

		var relativePaths []string
		if raw := c.FormValue("relativePaths"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &relativePaths); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_RELATIVE_PATHS", "relativePaths must be a JSON array")
			}
		}

		var allowedUsers []string
		if raw := c.FormValue("allowedUsers"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &allowedUsers); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ALLOWED_USERS", "allowedUsers must be a JSON array")
			}
		}

		var expiry *time.Time
		if raw := c.FormValue("expiryDate"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_EXPIRY", "expiryDate must be RFC 3339")
			}
			expiry = &t
		}

		var parentID *string
		if v := c.FormValue("parentId"); v != "" {
			parentID = &v
		}

		req := service.UploadRequest{
			ParentID:  parentID,
			CompanyID: c.FormValue("companyId"),
			Metadata: service.ItemMetadata{
				ExpiryDate:   expiry,
				IsRestricted: c.FormValue("isRestricted") == "true",
				AllowedUsers: allowedUsers,
				Department:   model.Department(c.FormValue("department")),
			},
		}

		opened := make([]io.Closer, 0, len(headers))
		defer func() {
			for _, f := range opened {
				f.Close()
			}
		}()

		for i, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			opened = append(opened, f)

			relPath := fh.Filename
			if i < len(relativePaths) && relativePaths[i] != "" {
				relPath = relativePaths[i]
			}
			ct := fh.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}

			req.Files = append(req.Files, service.UploadFile{
				RelativePath: relPath,
				OriginalName: fh.Filename,
				MimeType:     ct,
				Size:         fh.Size,
				Content:      f,
			})
		}

		created, err := items.Upload(c.UserContext(), middleware.PrincipalFromCtx(c), req)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

func listChildren(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var parentID *string
		if v := c.Query("parentId"); v != "" {
			parentID = &v
		}

		res, err := items.ListChildren(
			c.UserContext(),
			c.Query("companyId"),
			parentID,
			model.ItemType(c.Query("type")),
		)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func listDepartments(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := items.Departments(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func listFolderContents(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := items.ListDescendants(c.UserContext(), middleware.PrincipalFromCtx(c), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func getItem(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		item, err := items.Get(c.UserContext(), middleware.PrincipalFromCtx(c), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

func openItem(items *service.ItemService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := items.Open(c.UserContext(), middleware.PrincipalFromCtx(c), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		if !res.Allowed {
			return c.Status(fiber.StatusForbidden).JSON(res)
		}
		return c.JSON(res)
	}
}

// updateItem renames an item and/or updates its access metadata in one call.
// Absent fields are left unchanged. An expiry can only be set here; clearing
// one goes through the dedicated expiry route.
func updateItem(items *service.ItemService, tree *service.TreeService) fiber.Handler {
	type body struct {
		Name              *string           `json:"name"`
		ExpiryDate        *time.Time        `json:"expiryDate"`
		IsRestricted      *bool             `json:"isRestricted"`
		AllowedUsers      []string          `json:"allowedUsers"`
		Department        *model.Department `json:"department"`
		SharedDepartments []string          `json:"sharedDepartments"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		var item *model.Item
		var err error
		if b.Name != nil {
			item, err = tree.Rename(c.UserContext(), id, *b.Name)
			if err != nil {
				return writeServiceError(c, err)
			}
		}
		if b.ExpiryDate != nil || b.IsRestricted != nil || b.AllowedUsers != nil || b.Department != nil || b.SharedDepartments != nil {
			item, err = items.UpdateMetadata(c.UserContext(), id, repository.MetadataUpdate{
				SetExpiry:         b.ExpiryDate != nil,
				ExpiryDate:        b.ExpiryDate,
				IsRestricted:      b.IsRestricted,
				AllowedUsers:      b.AllowedUsers,
				Department:        b.Department,
				SharedDepartments: b.SharedDepartments,
			})
			if err != nil {
				return writeServiceError(c, err)
			}
		}
		if item == nil {
			return writeError(c, fiber.StatusBadRequest, "EMPTY_UPDATE", "nothing to update")
		}
		return c.JSON(item)
	}
}

func updateAccess(items *service.ItemService) fiber.Handler {
	type body struct {
		IsRestricted bool     `json:"isRestricted"`
		AllowedUsers []string `json:"allowedUsers"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		item, err := items.UpdateAccess(c.UserContext(), id, b.IsRestricted, b.AllowedUsers)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

func updateExpiry(items *service.ItemService) fiber.Handler {
	type body struct {
		ExpiryDate *time.Time `json:"expiryDate"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		item, err := items.UpdateExpiry(c.UserContext(), id, b.ExpiryDate)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

func assignCompany(tree *service.TreeService) fiber.Handler {
	type body struct {
		CompanyID string `json:"companyId"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		item, err := tree.Move(c.UserContext(), id, b.CompanyID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

func shareDepartments(items *service.ItemService) fiber.Handler {
	type body struct {
		Departments []string `json:"departments"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		item, err := items.ShareDepartments(c.UserContext(), id, b.Departments)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

func deleteItem(tree *service.TreeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := tree.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func createAccessRequest(requests *service.AccessRequestService) fiber.Handler {
	type body struct {
		ItemID   string         `json:"itemId"`
		ItemType model.ItemType `json:"itemType"`
	}
	return func(c *fiber.Ctx) error {
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		req, err := requests.Request(c.UserContext(), middleware.PrincipalFromCtx(c), b.ItemID, b.ItemType)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	}
}

func listAccessRequests(requests *service.AccessRequestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := requests.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func checkAccessRequest(requests *service.AccessRequestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		itemID := c.Params("itemId")
		if _, err := uuid.Parse(itemID); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		approved, err := requests.CheckApproved(c.UserContext(), middleware.PrincipalFromCtx(c), itemID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"approved": approved})
	}
}

func setAccessRequestStatus(requests *service.AccessRequestService) fiber.Handler {
	type body struct {
		Status model.RequestStatus `json:"status"`
	}
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var b body
		if err := c.BodyParser(&b); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		req, err := requests.SetStatus(c.UserContext(), id, b.Status)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(req)
	}
}
