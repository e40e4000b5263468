package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tealeg/xlsx"

	"shop-service/models"
	"shop-service/services"
)

type ProductController struct {
	products *services.ProductService
	uploads  Uploads
}

func NewProductController(products *services.ProductService, uploads Uploads) *ProductController {
	return &ProductController{products: products, uploads: uploads}
}

func (pc *ProductController) GetAllProducts(c *gin.Context) {
	products, err := pc.products.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (pc *ProductController) GetProduct(c *gin.Context) {
	p, err := pc.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req models.ProductRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := pc.uploads.Save(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := pc.products.Create(c.Request.Context(), req, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (pc *ProductController) UpdateProduct(c *gin.Context) {
	var req models.ProductRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	image, err := pc.uploads.Save(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := pc.products.Update(c.Request.Context(), c.Param("id"), req, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *ProductController) DeleteProduct(c *gin.Context) {
	if err := pc.products.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// ExportProducts streams the catalog as an xlsx workbook.
func (pc *ProductController) ExportProducts(c *gin.Context) {
	products, err := pc.products.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := productWorkbook(products)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=products.xlsx")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)
	if err := file.Write(c.Writer); err != nil {
		respondError(c, fmt.Errorf("write workbook: %w", err))
	}
}

var productSheetHeaders = []string{
	"ID", "Name", "Category", "Price", "Stock", "Description", "Image", "CreatedAt", "UpdatedAt",
}

func productWorkbook(products []models.Product) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range productSheetHeaders {
		header.AddCell().SetValue(h)
	}
	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID)
		row.AddCell().SetValue(p.Name)
		row.AddCell().SetValue(p.Category)
		row.AddCell().SetValue(p.Price.StringFixed(2))
		row.AddCell().SetInt(p.StockQuantity)
		row.AddCell().SetValue(p.Description)
		row.AddCell().SetValue(p.Image)
		row.AddCell().SetValue(p.CreatedAt.Format(time.DateTime))
		row.AddCell().SetValue(p.UpdatedAt.Format(time.DateTime))
	}
	return file, nil
}
