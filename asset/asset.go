package asset

import (
	"embed"
	"fmt"

	"fyne.io/fyne/v2"

	"github.com/dixieflatline76/squareframe/util/log"
)

//go:embed web/* icons/* models/*
var assets embed.FS

// Manager manages the loading of embedded assets.
type Manager struct{}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{}
}

// GetWebPage returns an embedded browser page by name.
func (am *Manager) GetWebPage(name string) ([]byte, error) {
	page, err := assets.ReadFile("web/" + name)
	if err != nil {
		log.Println("Error loading page:", err)
		return nil, err
	}
	return page, nil
}

// GetIcon loads and returns embedded icon asset by name.
func (am *Manager) GetIcon(name string) (fyne.Resource, error) {
	if name == "" {
		return nil, fmt.Errorf("icon name is empty")
	}

	iconData, err := assets.ReadFile("icons/" + name)
	if err != nil {
		log.Println("Error loading icon:", err)
		return nil, err
	}

	return fyne.NewStaticResource(name, iconData), nil
}

// GetModel loads and returns embedded model asset by name.
func (am *Manager) GetModel(name string) ([]byte, error) {
	modelData, err := assets.ReadFile("models/" + name)
	if err != nil {
		log.Println("Error loading model:", err)
		return nil, err
	}
	return modelData, nil
}
