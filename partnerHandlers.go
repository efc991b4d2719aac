package main

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func listPartnersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partners, err := models.ListPartners(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "main", "listPartnersHandler", "list partners", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		c.JSON(http.StatusOK, partners)
	}
}

func upsertPartnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.PartnerInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrPartnerCodeRequired.Error()})
			return
		}
		partner, err := models.UpsertPartner(c.Request.Context(), input)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "partner": partner})
		case errors.Is(err, models.ErrPartnerCodeRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "upsertPartnerHandler", "upsert partner", input.PartnerCode, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func exportPartnersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var buf bytes.Buffer
		if err := models.ExportPartnersExcel(c.Request.Context(), &buf); err != nil {
			config.LogError(config.GetLogger(), "main", "exportPartnersHandler", "build workbook", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		filename := "partners_" + time.Now().UTC().Format("20060102") + ".xlsx"
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}
