package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"

	"parley.chat/audio"
	"parley.chat/capture"
	"parley.chat/config"
	"parley.chat/discord"
	"parley.chat/identity"
	"parley.chat/snd"
	"parley.chat/stt"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	discordCmd.Flags().
		String("guild", "", "Guild ID to join a voice channel in")
	discordCmd.Flags().
		String("channel", "", "Voice channel ID to capture")
	rootCmd.AddCommand(discordCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().String("discord-token", "", "Discord bot token")
	rootCmd.PersistentFlags().
		String("backend", "", "Transcription backend (stub, remote-api, remote-stream)")
	rootCmd.PersistentFlags().String("api-key", "", "Transcription API key")
	rootCmd.PersistentFlags().String("remote-url", "", "Transcription service URL")

	viper.BindPFlag(
		"discord_token",
		rootCmd.PersistentFlags().Lookup("discord-token"),
	)
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag(
		"remote_url",
		rootCmd.PersistentFlags().Lookup("remote-url"),
	)
}

func initConfig() {
	viper.SetConfigName("parley")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "parley"))
	}
	config.SetDefaults(viper.GetViper())
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

func createLoggers() (mainLogger, chatLogger, hearLogger *log.Logger) {
	logger.SetLevel(log.DebugLevel)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	chatLogger = logger.With().WithPrefix("chat")
	hearLogger = logger.With().WithPrefix("hear")

	return
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley transcribes multi-speaker voice channels",
	Long:  `Parley joins voice channels, captures each speaker separately, and emits attributed transcript lines.`,
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Start the Discord capture bot",
	Run:   runDiscord,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe one raw PCM file and print the text",
	Long:  `Transcribe a raw PCM file (signed 16-bit little-endian, 48kHz stereo) through the configured backend.`,
	Args:  cobra.ExactArgs(1),
	Run:   runTranscribe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Run:   runShowConfig,
}

func runDiscord(cmd *cobra.Command, args []string) {
	mainLogger, chatLogger, hearLogger := createLoggers()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		mainLogger.Fatal("configuration", "error", err.Error())
	}
	if cfg.DiscordToken == "" {
		mainLogger.Fatal("missing DISCORD_TOKEN or --discord-token=")
	}

	guildID, _ := cmd.Flags().GetString("guild")
	channelID, _ := cmd.Flags().GetString("channel")
	if guildID == "" || channelID == "" {
		mainLogger.Fatal("missing --guild= or --channel=")
	}

	transcriber, err := stt.New(cfg, hearLogger)
	if err != nil {
		mainLogger.Fatal("create transcription backend", "error", err.Error())
	}

	converter := audio.NewConverter(cfg.ConverterBin, hearLogger)
	if !converter.Available() {
		mainLogger.Warn(
			"converter binary not found, utterances will be dropped",
			"bin", cfg.ConverterBin,
		)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		mainLogger.Fatal("create Discord session", "error", err.Error())
	}
	dg.Identify.Intents = discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages

	if err := dg.Open(); err != nil {
		mainLogger.Fatal("open Discord connection", "error", err.Error())
	}
	defer dg.Close()
	mainLogger.Info("connected", "user", dg.State.User.Username)

	store := identity.NewStore()
	resolver := identity.NewDiscordResolver(store, dg, chatLogger)

	emitters := capture.Emitters{&capture.LogEmitter{Log: chatLogger}}
	if cfg.TranscriptChannel != "" {
		emitters = append(
			emitters,
			discord.NewChannelEmitter(dg, cfg.TranscriptChannel, chatLogger),
		)
	}

	deps := capture.Deps{
		Log:        hearLogger,
		Convert:    converter,
		Transcribe: transcriber,
		Resolve:    resolver,
		Emit:       emitters,
		Sem:        semaphore.NewWeighted(cfg.MaxConversions),
	}
	if cfg.SaveAudioDir != "" {
		archiver, err := snd.NewArchiver(cfg.SaveAudioDir, hearLogger)
		if err != nil {
			mainLogger.Fatal("create audio archive", "error", err.Error())
		}
		deps.Archive = archiver
	}

	controller := discord.NewController(
		discord.NewGatewayTransport(dg),
		discord.OpusDecoders(),
		cfg.SilenceThreshold(),
		cfg.FinalizeGrace(),
		deps,
		chatLogger,
	)
	if err := controller.Join(guildID, channelID); err != nil {
		mainLogger.Fatal("join voice channel", "error", err.Error())
	}
	defer controller.LeaveAll()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	mainLogger.Info("shutting down")
}

func runTranscribe(cmd *cobra.Command, args []string) {
	mainLogger, _, hearLogger := createLoggers()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		mainLogger.Fatal("configuration", "error", err.Error())
	}

	pcm, err := os.ReadFile(args[0])
	if err != nil {
		mainLogger.Fatal("read input file", "error", err.Error())
	}

	transcriber, err := stt.New(cfg, hearLogger)
	if err != nil {
		mainLogger.Fatal("create transcription backend", "error", err.Error())
	}

	converter := audio.NewConverter(cfg.ConverterBin, hearLogger)
	wav, err := converter.Convert(context.Background(), pcm)
	if err != nil {
		mainLogger.Fatal("convert audio", "error", err.Error())
	}

	result := transcriber.Transcribe(context.Background(), wav)
	if result.Err != nil {
		mainLogger.Fatal("transcribe", "error", result.Err.Error())
	}

	fmt.Println(result.Text)
}

func runShowConfig(cmd *cobra.Command, args []string) {
	mainLogger, _, _ := createLoggers()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		mainLogger.Fatal("configuration", "error", err.Error())
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	table.Append([]string{"backend", cfg.Backend})
	table.Append([]string{"model_name", cfg.ModelName})
	table.Append([]string{"remote_url", cfg.RemoteURL})
	table.Append([]string{"api_key", redact(cfg.APIKey)})
	table.Append([]string{"discord_token", redact(cfg.DiscordToken)})
	table.Append([]string{"transcript_channel", cfg.TranscriptChannel})
	table.Append([]string{"silence_threshold", cfg.SilenceThreshold().String()})
	table.Append([]string{"finalize_grace", cfg.FinalizeGrace().String()})
	table.Append([]string{"max_conversions", fmt.Sprintf("%d", cfg.MaxConversions)})
	table.Append([]string{"converter_bin", cfg.ConverterBin})
	table.Append([]string{"save_audio_dir", cfg.SaveAudioDir})

	table.Render()
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
