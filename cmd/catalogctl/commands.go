package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"serenity-catalog/internal/client"
	"serenity-catalog/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// catalogctl login
var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Sign in and print a bearer token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		session, err := c.Login(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		log.Debug("Signed in", zap.String("user_id", session.UserID), zap.String("role", session.Role))
		fmt.Fprintln(cmd.OutOrStdout(), c.Token())
		return nil
	},
}

var searchFlags struct {
	term string
	page int
}

// catalogctl search
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List one page of products",
	RunE: func(cmd *cobra.Command, args []string) error {
		view := client.NewView(newClient())
		if err := view.SetSearchTerm(cmd.Context(), searchFlags.term); err != nil {
			return err
		}
		if searchFlags.page > 1 {
			if err := view.SetPage(cmd.Context(), searchFlags.page); err != nil {
				return err
			}
		}

		if view.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), "No products found")
			return nil
		}
		if err := printJSON(cmd.OutOrStdout(), view.Result().Products); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d\n", view.Page(), view.PageCount())
		return nil
	},
}

var productFlags struct {
	id      string
	name    string
	typ     string
	brand   string
	price   float64
	stock   int
	expired string
	image   string
}

// catalogctl create
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a product, uploading its image first when --image is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		form := client.ProductForm{
			Name:  productFlags.name,
			Type:  productFlags.typ,
			Brand: productFlags.brand,
			Price: productFlags.price,
			Stock: productFlags.stock,
		}
		if productFlags.expired != "" {
			date, err := domain.ParseDate(productFlags.expired)
			if err != nil {
				return err
			}
			form.ExpiredDate = &date
		}

		var image *client.Image
		if productFlags.image != "" {
			f, err := os.Open(productFlags.image)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()
			image = &client.Image{Filename: filepath.Base(productFlags.image), Content: f}
		}

		product, err := client.NewView(newClient()).Submit(cmd.Context(), form, image)
		if product == nil && err != nil {
			return err
		}
		if err != nil {
			log.Warn("Product created but the listing could not be refreshed", zap.Error(err))
		}
		return printJSON(cmd.OutOrStdout(), product)
	},
}

// catalogctl update
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace name, type, brand and price of a product",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(productFlags.id)
		if err != nil {
			return fmt.Errorf("--id: %w", err)
		}

		product, err := newClient().UpdateProduct(cmd.Context(), client.ProductUpdate{
			ProductID: id,
			Name:      productFlags.name,
			Type:      productFlags.typ,
			Brand:     productFlags.brand,
			Price:     productFlags.price,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), product)
	},
}

// catalogctl delete
var deleteCmd = &cobra.Command{
	Use:   "delete <productId>",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("productId: %w", err)
		}
		if err := newClient().DeleteProduct(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Product deleted successfully")
		return nil
	},
}

// catalogctl upload
var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close()

		imageURL, err := newClient().UploadImage(cmd.Context(), client.Image{
			Filename: filepath.Base(args[0]),
			Content:  f,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), imageURL)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchFlags.term, "term", "t", "", "match name, type or brand")
	searchCmd.Flags().IntVarP(&searchFlags.page, "page", "p", 1, "page number")

	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringVar(&productFlags.name, "name", "", "product name")
		cmd.Flags().StringVar(&productFlags.typ, "type", "", "product type, e.g. Serum")
		cmd.Flags().StringVar(&productFlags.brand, "brand", "", "brand")
		cmd.Flags().Float64Var(&productFlags.price, "price", 0, "price")
	}
	createCmd.Flags().IntVar(&productFlags.stock, "stock", 0, "units in stock")
	createCmd.Flags().StringVar(&productFlags.expired, "expired", "", "expiry date, YYYY-MM-DD")
	createCmd.Flags().StringVar(&productFlags.image, "image", "", "path of an image to upload")

	updateCmd.Flags().StringVar(&productFlags.id, "id", "", "product id")
	_ = updateCmd.MarkFlagRequired("id")
}
