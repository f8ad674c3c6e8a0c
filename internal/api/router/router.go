package router

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-agent-go/internal/api/handler"
)

// RegisterRoutes 注册API路由。apiKey非空时业务路由要求
// X-API-Key请求头，健康检查不鉴权。
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler, apiKey string) {
	h.GET("/api/v1/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if apiKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return key == apiKey, nil
			}),
		))
	}

	api.POST("/resumes/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		req, err := uploadRequestFromFile(fileHeader)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
			return
		}
		req.Requirements = string(ctx.FormValue("requirements"))
		req.Sync = string(ctx.FormValue("sync")) == "true"
		if by := string(ctx.FormValue("uploaded_by")); by != "" {
			req.UploadedBy = &by
		}

		resp, err := resumeHandler.HandleUpload(c, req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/resumes/upload/bulk", func(c context.Context, ctx *app.RequestContext) {
		form, err := ctx.MultipartForm()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "multipart表单解析失败"})
			return
		}

		var files []*handler.UploadRequest
		for _, fh := range form.File["files"] {
			req, err := uploadRequestFromFile(fh)
			if err != nil {
				ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败: " + fh.Filename})
				return
			}
			files = append(files, req)
		}
		if vals := form.Value["requirements"]; len(vals) > 0 {
			for _, f := range files {
				f.Requirements = vals[0]
			}
		}

		results, err := resumeHandler.HandleBulkUpload(c, files)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"results": results})
	})

	api.GET("/parse-runs/:id", func(c context.Context, ctx *app.RequestContext) {
		view, err := resumeHandler.GetParseRun(c, ctx.Param("id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, view)
	})

	api.POST("/parse-runs/:id/retry", func(c context.Context, ctx *app.RequestContext) {
		var body struct {
			Requirements string `json:"requirements"`
		}
		_ = ctx.BindJSON(&body) // 空body合法，继承上一次的需求快照

		resp, err := resumeHandler.RetryParseRun(c, ctx.Param("id"), body.Requirements)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.PATCH("/candidates/:id", func(c context.Context, ctx *app.RequestContext) {
		var body struct {
			EditedBy *string                `json:"edited_by"`
			Updates  map[string]interface{} `json:"updates"`
		}
		if err := ctx.BindJSON(&body); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法JSON"})
			return
		}

		cand, err := resumeHandler.UpdateCandidate(c, ctx.Param("id"), body.EditedBy, body.Updates)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, cand)
	})

}

func uploadRequestFromFile(fh *multipart.FileHeader) (*handler.UploadRequest, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &handler.UploadRequest{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

// writeError 区分接口错误与内部错误
func writeError(ctx *app.RequestContext, err error) {
	var ae *handler.APIError
	if errors.As(err, &ae) {
		ctx.JSON(ae.Status, utils.H{"error_code": ae.Code, "error": ae.Message})
		return
	}
	ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
}
