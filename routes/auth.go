package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"techdocs-rag-platform/internal/auth"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/models"
	"techdocs-rag-platform/utils"
)

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, rdb *redis.Client) {
	authGroup := router.Group("/auth")
	usersCol := db.Collection("users")

	authGroup.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		var existing models.User
		if err := usersCol.FindOne(ctx, bson.M{"email": req.Email}).Decode(&existing); err == nil {
			utils.RespondWithConflict(c, "An account with this email already exists", nil)
			return
		}

		hashed, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		user := models.User{
			Email:        req.Email,
			Name:         req.Name,
			PasswordHash: hashed,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		result, err := usersCol.InsertOne(ctx, user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}
		userID := result.InsertedID.(primitive.ObjectID).Hex()

		tokenPair, err := auth.IssueTokenPair(userID, req.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusCreated, models.TokenPairResponse{
			AccessToken:  tokenPair.AccessToken,
			RefreshToken: tokenPair.RefreshToken,
			AccessExp:    tokenPair.AccessExp,
			RefreshExp:   tokenPair.RefreshExp,
			User:         models.UserInfo{ID: userID, Email: req.Email, Name: req.Name},
		})
	})

	authGroup.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		var user models.User
		if err := usersCol.FindOne(ctx, bson.M{"email": req.Email}).Decode(&user); err != nil {
			utils.RespondWithUnauthorized(c, "Invalid email or password")
			return
		}
		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid email or password")
			return
		}

		tokenPair, err := auth.IssueTokenPair(user.ID.Hex(), user.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusOK, models.TokenPairResponse{
			AccessToken:  tokenPair.AccessToken,
			RefreshToken: tokenPair.RefreshToken,
			AccessExp:    tokenPair.AccessExp,
			RefreshExp:   tokenPair.RefreshExp,
			User:         models.UserInfo{ID: user.ID.Hex(), Email: user.Email, Name: user.Name},
		})
	})

	authGroup.POST("/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Refresh token is required", nil)
			return
		}

		claims, err := auth.ValidateRefreshToken(req.RefreshToken, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired refresh token")
			return
		}

		// Rotate: revoke the used refresh token before issuing new ones.
		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to rotate tokens", nil)
			return
		}

		tokenPair, err := auth.IssueTokenPair(claims.UserID, claims.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"access_exp":    tokenPair.AccessExp,
			"refresh_exp":   tokenPair.RefreshExp,
		})
	})

	authGroup.POST("/logout", func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			return
		}

		claims, err := auth.ValidateAccessToken(tokenString, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			return
		}

		if err := auth.RevokeAllUserTokens(claims.UserID, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to revoke tokens", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})
}
