// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package demo is a small gin application whose responses cover every
// traffic shape the observer classifies: markup, JSON, templates with and
// without context, and redirects.
package demo

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/testguess/services/guesser/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// User is the model shown on template pages.
type User struct {
	Name  string
	Email string
}

// Register loads the templates into r and adds the demo routes.
func Register(r *gin.Engine) error {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)

	r.GET("/", middleware.Name("demo", "index"), index)
	r.GET("/1/", templateResponse)
	r.GET("/2/", jsonResponse)
	r.GET("/3/", middleware.ViewOf("demo.render"), render)
	r.GET("/4/", plainRender)
	r.GET("/5/", middleware.Name("demo", "redirect_permanent"), redirectTo(http.StatusMovedPermanently))
	r.GET("/6/", middleware.Name("demo", "redirect"), redirectTo(http.StatusFound))
	r.GET("/users/:id", middleware.ViewOf(userPage{}), userPage{}.serve)
	r.POST("/users", createUser)
	r.GET("/staff/", middleware.Name("demo", "staff"), requireRole("staff"), staffPage)
	return nil
}

const indexPage = `<!doctype html>
<html><body>
<ul>
    <li><a href="/1/">Template Response</a></li>
    <li><a href="/2/">JSON Response</a></li>
    <li><a href="/3/">Render shortcut</a></li>
    <li><a href="/4/">Render without context</a></li>
    <li><a href="/5/">301 Redirect</a></li>
    <li><a href="/6/">302 Redirect</a></li>
    <li><a href="/staff/">Staff only</a></li>
</ul>
</body></html>`

func index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

func templateResponse(c *gin.Context) {
	middleware.HTML(c, http.StatusOK, "base.html", gin.H{
		"title": "Template Response",
		"form":  url.Values{},
		"users": []User{{Name: "alice"}, {Name: "bob"}},
		"user":  &User{Name: "alice", Email: "alice@example.com"},
		"sub": gin.H{
			"sub2": gin.H{"yay": 1, "woo": "heh"},
		},
	})
}

func jsonResponse(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lol": 1})
}

func render(c *gin.Context) {
	middleware.HTML(c, http.StatusOK, "base.html", gin.H{})
}

// plainRender uses gin directly, so no context is attached.
func plainRender(c *gin.Context) {
	c.HTML(http.StatusOK, "base.html", gin.H{"title": "Plain"})
}

func redirectTo(code int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(code, "/")
	}
}

type userPage struct{}

func (userPage) serve(c *gin.Context) {
	middleware.HTML(c, http.StatusOK, "base.html", gin.H{
		"title": "User " + c.Param("id"),
		"user":  User{Name: c.Param("id")},
	})
}

func createUser(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

// requireRole rejects requests whose principal lacks role.
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil || !info.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + role})
			return
		}
		c.Next()
	}
}

func staffPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": middleware.GetAuthInfo(c).UserID})
}
