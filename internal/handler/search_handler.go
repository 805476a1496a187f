package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SearchArticles 全文检索已发布文章
func (a *API) SearchArticles(c *gin.Context) {
	page, perPage := parsePagination(c, 10)

	result, err := a.search.Search(c.Query("q"), page, perPage)
	if err != nil {
		a.log.Error().Err(err).Str("query", c.Query("q")).Msg("检索失败")
		respondError(c, http.StatusInternalServerError, "搜索失败")
		return
	}
	c.JSON(http.StatusOK, result)
}
