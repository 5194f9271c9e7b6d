package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rkRashik/deltacrown/handlers"
	"github.com/rkRashik/deltacrown/middleware"
	"github.com/rkRashik/deltacrown/models"
)

// SetupRoutes монтирует все маршруты движка верификации результатов.
// Подача и ответы — для любого аутентифицированного участника; ревью,
// разрешение споров и батчи — только организатор и админ.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Auth,
	submissionHandler *handlers.SubmissionHandler,
	disputeHandler *handlers.DisputeHandler,
	reviewHandler *handlers.ReviewHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	// Прямая трансляция в комнату турнира; авторизация не требуется,
	// канал только на чтение.
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	// Участники: подача результата и ответ соперника.
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/matches/{matchID}/results", submissionHandler.SubmitResult)
		r.Post("/matches/{matchID}/proofs", submissionHandler.UploadProof)
		r.Get("/submissions/{submissionID}", submissionHandler.GetSubmission)
		r.Post("/submissions/{submissionID}/response", submissionHandler.RespondToSubmission)
		r.Post("/submissions/{submissionID}/confirm", submissionHandler.ConfirmSubmission)

		r.Get("/disputes/{disputeID}", disputeHandler.GetDispute)
		r.Post("/disputes/{disputeID}/evidence", disputeHandler.UploadEvidence)
		r.Post("/disputes/{disputeID}/evidence-links", disputeHandler.AddEvidenceLink)
	})

	// Организаторы: рассмотрение споров и очередь ревью.
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.Authorize(models.RoleOrganizer, models.RoleAdmin))

		r.Post("/disputes/{disputeID}/review", disputeHandler.MarkUnderReview)
		r.Post("/disputes/{disputeID}/escalate", disputeHandler.EscalateDispute)
		r.Post("/disputes/{disputeID}/resolve", disputeHandler.ResolveDispute)

		r.Route("/review", func(r chi.Router) {
			r.Get("/queue", reviewHandler.ListReviewQueue)

			r.Post("/disputes/{disputeID}/approve-original", reviewHandler.ApproveOriginalResult)
			r.Post("/disputes/{disputeID}/approve-disputed", reviewHandler.ApproveDisputedResult)
			r.Post("/disputes/{disputeID}/custom-result", reviewHandler.ApplyCustomResult)
			r.Post("/disputes/{disputeID}/dismiss", reviewHandler.DismissDispute)

			r.Post("/submissions/{submissionID}/finalize", reviewHandler.FinalizeSubmission)
			r.Get("/submissions/{submissionID}/verify", reviewHandler.DryRunVerification)
			r.Get("/submissions/{submissionID}/verification-steps", reviewHandler.ListVerificationSteps)

			r.Post("/bulk-finalize", reviewHandler.BulkFinalize)
			r.Post("/bulk-reject", reviewHandler.BulkReject)
		})
	})
}
