// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the process configuration for the bridge service.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	// PublicDomain is the externally reachable hostname used to build the
	// TwiML stream URL and the status-callback URL handed to Twilio.
	PublicDomain string `mapstructure:"public_domain" validate:"required"`

	// Twilio credentials, required for outbound call creation and hangup.
	TwilioAccountSid  string `mapstructure:"twilio_account_sid" validate:"required"`
	TwilioAuthToken   string `mapstructure:"twilio_auth_token" validate:"required"`
	TwilioPhoneNumber string `mapstructure:"twilio_phone_number" validate:"required"`

	// Gemini speech service.
	GeminiApiKey string `mapstructure:"gemini_api_key" validate:"required"`
	GeminiModel  string `mapstructure:"gemini_model" validate:"required"`

	// GeminiTtsModel serves the turn-based variant's one-shot synthesis.
	GeminiTtsModel string `mapstructure:"gemini_tts_model" validate:"required"`

	// AgentMode selects the speech adapter variant: "duplex" or "turnbased".
	AgentMode string `mapstructure:"agent_mode" validate:"required,oneof=duplex turnbased"`

	// Audio rates. Telephony is fixed at 8kHz mu-law by the provider; the
	// speech service consumes 16kHz PCM and produces 24kHz PCM.
	TelephonySampleRate int `mapstructure:"telephony_sample_rate" validate:"required"`
	SpeechInputRate     int `mapstructure:"speech_input_rate" validate:"required"`
	SpeechOutputRate    int `mapstructure:"speech_output_rate" validate:"required"`
}

// InitConfig reads configuration from a .env file (or ENV_PATH override) and
// the environment, seeding defaults first.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "voxbridge")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "debug")

	v.SetDefault("PUBLIC_DOMAIN", "")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "models/gemini-2.0-flash-live-001")
	v.SetDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts")
	v.SetDefault("AGENT_MODE", "duplex")

	v.SetDefault("TELEPHONY_SAMPLE_RATE", 8000)
	v.SetDefault("SPEECH_INPUT_RATE", 16000)
	v.SetDefault("SPEECH_OUTPUT_RATE", 24000)
}

// GetApplicationConfig decodes and validates the application config.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
