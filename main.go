// main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/2314069/renku-app/db"
	"github.com/2314069/renku-app/hub"
	"github.com/2314069/renku-app/service"
	"github.com/2314069/renku-app/verse"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// --- Initialization ---
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment defaults")
	}

	store, err := db.NewStore(
		envOr("MONGODB_URI", "mongodb://localhost:27017"),
		envOr("DB_NAME", "renku-app"),
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connected.")

	svc := service.New(store)
	hubInstance := hub.NewHub()
	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: envOr("FRONTEND_URL", "http://localhost:5173"),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	api := app.Group("/api")

	// Create a new renku
	api.Post("/renku", func(c *fiber.Ctx) error {
		var body struct {
			Title           string `json:"title"`
			ParticipantName string `json:"participantName"`
			Role            string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		r, err := svc.CreateRenku(c.Context(), body.Title, body.ParticipantName, body.Role)
		if err != nil {
			log.Printf("Failed to create renku: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create renku"})
		}
		return c.JSON(r)
	})

	// List renku, most recently updated first
	api.Get("/renku", func(c *fiber.Ctx) error {
		list, err := svc.ListRenku(c.Context())
		if err != nil {
			log.Printf("Failed to list renku: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list renku"})
		}
		return c.JSON(list)
	})

	// Get renku by ID
	api.Get("/renku/:id", func(c *fiber.Ctx) error {
		r, err := svc.GetRenku(c.Context(), c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(r)
	})

	// Rename renku
	api.Put("/renku/:id", func(c *fiber.Ctx) error {
		var body struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		r, err := svc.UpdateRenkuTitle(c.Context(), c.Params("id"), body.Title)
		if err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastRenku(r)
		return c.JSON(r)
	})

	// Delete renku
	api.Delete("/renku/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := svc.DeleteRenku(c.Context(), id); err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastDeleted(id)
		return c.JSON(fiber.Map{"message": "renku deleted", "id": id})
	})

	// Add a verse
	api.Post("/renku/:id/verse", func(c *fiber.Ctx) error {
		var body struct {
			ParticipantID string `json:"participantId"`
			Text          string `json:"text"`
			SeasonWord    string `json:"seasonWord"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		v, r, err := svc.AddVerse(c.Context(), c.Params("id"), body.ParticipantID, body.Text, body.SeasonWord)
		if err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastRenku(r)
		return c.JSON(v)
	})

	// Edit a verse
	api.Put("/renku/:id/verse/:verseId", func(c *fiber.Ctx) error {
		var body struct {
			Text            *string `json:"text"`
			SeasonWord      *string `json:"seasonWord"`
			ParticipantName *string `json:"participantName"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		v, r, err := svc.UpdateVerse(c.Context(), c.Params("id"), c.Params("verseId"), service.VerseUpdate{
			Text:            body.Text,
			SeasonWord:      body.SeasonWord,
			ParticipantName: body.ParticipantName,
		})
		if err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastRenku(r)
		return c.JSON(v)
	})

	// Add a participant
	api.Post("/renku/:id/participant", func(c *fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		p, r, err := svc.AddParticipant(c.Context(), c.Params("id"), body.Name, body.Role)
		if err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastRenku(r)
		return c.JSON(p)
	})

	// Rename a participant (cascades to their past verses)
	api.Put("/renku/:id/participant/:participantId", func(c *fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse json"})
		}

		p, r, err := svc.UpdateParticipantName(c.Context(), c.Params("id"), c.Params("participantId"), body.Name)
		if err != nil {
			return errorResponse(c, err)
		}
		hubInstance.BroadcastRenku(r)
		return c.JSON(p)
	})

	// --- WebSocket Handling ---
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		defer func() {
			hubInstance.RemoveConn(c)
			c.Close()
			log.Println("Client disconnected")
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var msg hub.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Printf("Bad socket message: %v", err)
				continue
			}

			var payload struct {
				RenkuID string `json:"renkuId"`
			}
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					log.Printf("Bad socket payload for %q: %v", msg.Type, err)
					continue
				}
			}

			switch msg.Type {
			case hub.EventJoinRenku:
				hubInstance.Join(payload.RenkuID, c)
				log.Printf("Client joined %s (%d members)", hub.GroupName(payload.RenkuID), hubInstance.MemberCount(payload.RenkuID))

				// Late joiners catch up from a point-in-time snapshot.
				if r, err := svc.GetRenku(context.Background(), payload.RenkuID); err == nil {
					hubInstance.SendRenku(c, r)
				}

			case hub.EventLeaveRenku:
				hubInstance.Leave(payload.RenkuID, c)
				log.Printf("Client left %s", hub.GroupName(payload.RenkuID))

			case hub.EventVerseAdded:
				// Client-initiated nudge: re-read and re-broadcast.
				if r, err := svc.GetRenku(context.Background(), payload.RenkuID); err == nil {
					hubInstance.BroadcastRenku(r)
				}

			default:
				log.Printf("Unknown socket event %q", msg.Type)
			}
		}
	}))

	port := envOr("PORT", "3000")
	log.Printf("Starting server on :%s", port)
	if err := app.Listen("0.0.0.0:" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// errorResponse maps service and rules-engine errors onto HTTP statuses:
// unresolved ids are 404, rejected lines are 400, anything else is a
// logged 500 with a generic message.
func errorResponse(c *fiber.Ctx, err error) error {
	var vErr *verse.ValidationError
	switch {
	case errors.Is(err, service.ErrRenkuNotFound),
		errors.Is(err, service.ErrParticipantNotFound),
		errors.Is(err, service.ErrVerseNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Reason})
	default:
		log.Printf("Internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
