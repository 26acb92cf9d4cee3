package app

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"serialdb"
)

// personRequest is the JSON body for create/update calls.
type personRequest struct {
	Name  string `json:"name" binding:"required"`
	Age   int64  `json:"age" binding:"required,gte=0"`
	Email string `json:"email"`
}

type personResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Age   int64  `json:"age"`
	Email string `json:"email"`
}

func toResponse(p *Person) personResponse {
	return personResponse{ID: p.ID, Name: p.Name, Age: p.Age, Email: p.Email}
}

// routes registers the addressbook HTTP API.
func (a *App) routes(r *gin.Engine, q *serialdb.Queue) {
	r.GET("/healthz", func(c *gin.Context) {
		err := q.InDatabase(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) error {
			_, _, err := db.FetchOne(ctx, "SELECT 1", serialdb.Bindings{})
			return err
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/persons", func(c *gin.Context) {
		var req personRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p := &Person{Name: req.Name, Age: req.Age, Email: req.Email}
		err := q.InTransaction(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) (serialdb.Completion, error) {
			if err := serialdb.Insert(ctx, db, p); err != nil {
				return serialdb.Rollback, err
			}
			return serialdb.Commit, nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, toResponse(p))
	})

	r.GET("/persons", func(c *gin.Context) {
		var persons []personResponse
		err := q.InDatabase(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) error {
			rows, err := db.FetchAll(ctx, "SELECT * FROM persons ORDER BY name", serialdb.Bindings{})
			if err != nil {
				return err
			}
			for _, row := range rows {
				var p Person
				p.PopulateFromRow(row)
				persons = append(persons, toResponse(&p))
			}
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, persons)
	})

	r.GET("/persons/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var p *Person
		var found bool
		err = q.InDatabase(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) error {
			p, found, err = serialdb.FetchByKey[Person](ctx, db, id)
			return err
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		c.JSON(http.StatusOK, toResponse(p))
	})

	r.PUT("/persons/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req personRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p := &Person{ID: id, Name: req.Name, Age: req.Age, Email: req.Email}
		var affected int64
		err = q.InTransaction(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) (serialdb.Completion, error) {
			affected, err = serialdb.Update(ctx, db, p)
			if err != nil {
				return serialdb.Rollback, err
			}
			return serialdb.Commit, nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		c.JSON(http.StatusOK, toResponse(p))
	})

	r.DELETE("/persons/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		p := &Person{ID: id}
		var affected int64
		err = q.InTransaction(c.Request.Context(), func(ctx context.Context, db *serialdb.DB) (serialdb.Completion, error) {
			affected, err = serialdb.Delete(ctx, db, p)
			if err != nil {
				return serialdb.Rollback, err
			}
			return serialdb.Commit, nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
