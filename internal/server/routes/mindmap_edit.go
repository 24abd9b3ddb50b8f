package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/leaselock"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/labstack/echo/v4"
)

// editResponse carries the outcome of one edit. Notice is set when the edit
// was a no-op the UI should surface as a dismissible message.
type editResponse struct {
	Message string         `json:"message"`
	Notice  bool           `json:"notice,omitempty"`
	Node    *mindmap.Node  `json:"node,omitempty"`
	Edge    *mindmap.Edge  `json:"edge,omitempty"`
	Removed *int           `json:"removed,omitempty"`
	Graph   *mindmap.Graph `json:"graph,omitempty"`
}

// editMindMap loads the course mind map under its lease, lets apply mutate it
// and persists the result. Stored content without positions is laid out
// first so new nodes are placed relative to what the user sees.
func editMindMap(c echo.Context, op string, apply func(ed *mindmap.Editor, resp *editResponse) error) error {
	courseID := c.Param("course_id")
	if courseID == "" {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}
	app := c.(*middleware.AppContext).App
	width, err := viewportWidth(c, app)
	if err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: err.Error()})
	}

	resp := editResponse{}
	err = app.Locker.WithLease(c.Request().Context(), leaselock.MindMapKey(courseID), leaselock.EditOptions(), func(ctx context.Context) error {
		record, err := app.Store.GetStudyContent(ctx, courseID, string(ai.StudyTypeMindMap))
		if err != nil {
			return err
		}
		if len(record.Content) == 0 {
			return store.ErrNotFound
		}

		g := mindmap.Normalize(record.Content)
		if !allPositioned(g) {
			g = mindmap.Layout(g, width)
		}
		ed := mindmap.NewEditor(g)
		if err := apply(ed, &resp); err != nil {
			return err
		}

		data, err := json.Marshal(ed.Graph())
		if err != nil {
			return fmt.Errorf("serialize mind map: %w", err)
		}
		if _, err := app.Store.UpdateStudyContent(ctx, courseID, string(ai.StudyTypeMindMap), data); err != nil {
			return err
		}
		resp.Graph = ed.Graph()
		return nil
	})
	app.Metrics.ObserveEdit(op, err)

	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, mindmap.ErrNodeNotFound):
		return c.JSON(http.StatusNotFound, editResponse{Message: "Node not found, nothing was changed", Notice: true})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, editResponse{Message: "Mind map not found"})
	case errors.Is(err, leaselock.ErrBusy), errors.Is(err, leaselock.ErrLost):
		return c.JSON(http.StatusConflict, editResponse{Message: "Mind map is being edited, try again"})
	default:
		logger.Error("[MindMap] Edit failed", "op", op, "course", courseID, "err", err)
		return c.JSON(http.StatusInternalServerError, editResponse{Message: "Internal server error"})
	}
}

func allPositioned(g *mindmap.Graph) bool {
	for _, n := range g.Nodes {
		if !n.Positioned() {
			return false
		}
	}
	return true
}

type nodeContent struct {
	Label       string `json:"label" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func AddNodeHandler(c echo.Context) error {
	type addNodeData struct {
		ParentID string `json:"parent_id" validate:"required"`
		nodeContent
	}

	data := new(addNodeData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}

	return editMindMap(c, "add_child", func(ed *mindmap.Editor, resp *editResponse) error {
		node, err := ed.AddChild(data.ParentID, data.Label, data.Description)
		if err != nil {
			return err
		}
		resp.Message = "Node added"
		resp.Node = node
		return nil
	})
}

func EditNodeHandler(c echo.Context) error {
	data := new(nodeContent)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}
	nodeID := c.Param("node_id")

	return editMindMap(c, "edit_node", func(ed *mindmap.Editor, resp *editResponse) error {
		node, err := ed.EditNode(nodeID, data.Label, data.Description)
		if err != nil {
			return err
		}
		resp.Message = "Node updated"
		resp.Node = node
		return nil
	})
}

func DeleteNodeHandler(c echo.Context) error {
	nodeID := c.Param("node_id")

	return editMindMap(c, "delete_subtree", func(ed *mindmap.Editor, resp *editResponse) error {
		removed, err := ed.DeleteSubtree(nodeID)
		if err != nil {
			return err
		}
		resp.Message = "Node deleted"
		resp.Removed = &removed
		return nil
	})
}

func ConnectNodesHandler(c echo.Context) error {
	type connectData struct {
		Source string `json:"source" validate:"required"`
		Target string `json:"target" validate:"required"`
	}

	data := new(connectData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, editResponse{Message: "Invalid request params"})
	}

	return editMindMap(c, "connect", func(ed *mindmap.Editor, resp *editResponse) error {
		edge, err := ed.Connect(data.Source, data.Target)
		if err != nil {
			return err
		}
		resp.Message = "Nodes connected"
		resp.Edge = edge
		return nil
	})
}
